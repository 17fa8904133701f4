package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func rawOutputSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		b, err := json.Marshal(BuildRawOutputSchema())
		if err != nil {
			compileErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("raw_output.json", bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("raw_output.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compile schema: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks a serialised raw_output document.
func Validate(data []byte) error {
	schema, err := rawOutputSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal raw_output: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("raw_output does not match schema: %w", err)
	}
	return nil
}
