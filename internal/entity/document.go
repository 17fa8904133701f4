package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
)

// Document is an uploaded scan moving through the processing lifecycle.
type Document struct {
	ID                uuid.UUID                `json:"id"`
	OwnerID           string                   `json:"owner_id"`
	OriginalFilename  string                   `json:"original_filename"`
	StorageRef        string                   `json:"storage_ref"`
	MediaType         string                   `json:"media_type"`
	Category          constants.Category       `json:"category"`
	Status            constants.DocumentStatus `json:"status"`
	Stage             constants.Stage          `json:"stage,omitempty"`
	UploadedAt        time.Time                `json:"uploaded_at"`
	ProcessedAt       *time.Time               `json:"processed_at,omitempty"`
	ProcessingError   *string                  `json:"processing_error,omitempty"`
	RawOutput         json.RawMessage          `json:"raw_output,omitempty"`
	ProcessingQuality *constants.Quality       `json:"processing_quality,omitempty"`
	Attempts          int                      `json:"attempts"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// StatusView is what collaborators see when polling a document.
type StatusView struct {
	DocumentID  uuid.UUID                `json:"document_id"`
	Status      constants.DocumentStatus `json:"status"`
	Stage       constants.Stage          `json:"stage,omitempty"`
	ProcessedAt *time.Time               `json:"processed_at,omitempty"`
	Error       *string                  `json:"error,omitempty"`
	Quality     *constants.Quality       `json:"processing_quality,omitempty"`
}

func (d *Document) View() StatusView {
	return StatusView{
		DocumentID:  d.ID,
		Status:      d.Status,
		Stage:       d.Stage,
		ProcessedAt: d.ProcessedAt,
		Error:       d.ProcessingError,
		Quality:     d.ProcessingQuality,
	}
}
