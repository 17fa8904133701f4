package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/docscan/internal/imaging"
	"github.com/joseph-ayodele/docscan/internal/runner"
)

// FileLoader reads artifacts laid out as <Dir>/<model id>/<Weights>.
type FileLoader struct {
	Dir     string
	Weights string
	Command string
	Runner  runner.Runner
	Logger  *slog.Logger
}

func (l FileLoader) WeightsPath(id string) string {
	return filepath.Join(l.Dir, id, filepath.FromSlash(l.Weights))
}

func (l FileLoader) Load(_ context.Context, id string) (Model, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := l.WeightsPath(id)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open weights %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return nil, fmt.Errorf("read weights %s: %w", path, err)
	}
	digest := hex.EncodeToString(h.Sum(nil))
	logger.Debug("detect.weights.read", "model_id", id, "path", path, "bytes", n, "sha256", digest)

	r := l.Runner
	if r == nil {
		r = runner.New(logger)
	}
	return &CommandModel{
		id:      id,
		weights: path,
		digest:  digest,
		command: l.Command,
		runner:  r,
		logger:  logger,
	}, nil
}

// CommandModel delegates inference to an external detector executable that
// prints a JSON array of {"label","confidence","bbox"} objects.
type CommandModel struct {
	id      string
	weights string
	digest  string
	command string
	runner  runner.Runner
	logger  *slog.Logger
}

func (m *CommandModel) ID() string     { return m.id }
func (m *CommandModel) Digest() string { return m.digest }

type wireRegion struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

func (m *CommandModel) Predict(ctx context.Context, img *image.Gray) ([]Region, error) {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "docscan-detect-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp image: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write temp image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp image: %w", err)
	}

	stdout, stderr, err := m.runner.Run(ctx, m.command,
		"--weights", m.weights, "--image", tmp.Name(), "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w: %s", m.id, err, runner.Truncate(string(stderr), 512))
	}

	var wire []wireRegion
	if err := json.Unmarshal(stdout, &wire); err != nil {
		return nil, fmt.Errorf("detector %s: decode output: %w", m.id, err)
	}
	out := make([]Region, 0, len(wire))
	for _, w := range wire {
		out = append(out, Region{
			Label:      w.Label,
			Confidence: w.Confidence,
			BBox: BBox{
				int(math.Floor(w.BBox[0])),
				int(math.Floor(w.BBox[1])),
				int(math.Ceil(w.BBox[2])),
				int(math.Ceil(w.BBox[3])),
			},
		})
	}
	return out, nil
}
