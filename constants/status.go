package constants

// DocumentStatus is the lifecycle status stored on every document row.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    DocumentStatus = "PENDING"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func ParseStatus(s string) (DocumentStatus, bool) {
	switch DocumentStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return DocumentStatus(s), true
	}
	return "", false
}

// Stage is a progress marker inside PROCESSING. It never changes the status.
type Stage string

const (
	StageNone          Stage = ""
	StageDownloading   Stage = "downloading"
	StagePreprocessing Stage = "preprocessing"
	StageDetecting     Stage = "detecting"
	StageMapping       Stage = "mapping"
	StageSaving        Stage = "saving"
)

// Quality is the coarse confidence tier of one extraction pass.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)
