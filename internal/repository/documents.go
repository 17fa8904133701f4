package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/docscan/constants"
	"github.com/joseph-ayodele/docscan/internal/common"
	"github.com/joseph-ayodele/docscan/internal/entity"
)

const documentsTable = "documents"

var documentColumns = []string{
	"id", "owner_id", "original_filename", "storage_ref", "media_type", "category",
	"status", "stage", "uploaded_at", "processed_at", "processing_error", "raw_output",
	"processing_quality", "attempts", "updated_at",
}

// Transition describes one guarded status change. The update only applies while
// the row's current status is one of From.
type Transition struct {
	From []constants.DocumentStatus
	To   constants.DocumentStatus
	At   time.Time

	// COMPLETED
	RawOutput json.RawMessage
	Quality   constants.Quality

	// FAILED
	Error string

	// CountAttempt increments attempts (entering PROCESSING).
	CountAttempt bool
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) (*entity.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	Transition(ctx context.Context, id uuid.UUID, t Transition) (*entity.Document, error)
	SetStage(ctx context.Context, id uuid.UUID, stage constants.Stage) error
	ListByStatus(ctx context.Context, status constants.DocumentStatus, limit int) ([]*entity.Document, error)
	CountByStatus(ctx context.Context) (map[constants.DocumentStatus]int, error)
}

type documentRepo struct {
	db  *DB
	log *slog.Logger
}

func NewDocumentRepository(db *DB, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{db: db, log: log}
}

func (r *documentRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect())
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) (*entity.Document, error) {
	if doc == nil {
		return nil, common.WrapError(common.ErrInvalidInput, "document is nil")
	}
	d := *doc
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	if d.UploadedAt.IsZero() {
		d.UploadedAt = now
	}
	if d.Status == "" {
		d.Status = constants.StatusPending
	}
	d.UpdatedAt = now

	q, args := r.builder().Insert(documentsTable).
		Columns("id", "owner_id", "original_filename", "storage_ref", "media_type", "category",
			"status", "stage", "uploaded_at", "attempts", "updated_at").
		Values(d.ID.String(), d.OwnerID, d.OriginalFilename, d.StorageRef, d.MediaType, string(d.Category),
			string(d.Status), string(d.Stage), formatTime(d.UploadedAt), d.Attempts, formatTime(d.UpdatedAt)).
		Query()

	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		r.log.Error("document create failed", "document_id", d.ID, "err", err)
		return nil, fmt.Errorf("%w: create document: %v", common.ErrDatabase, err)
	}
	r.log.Info("document created", "document_id", d.ID, "category", d.Category, "owner_id", d.OwnerID)
	return &d, nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	b := r.builder()
	q, args := b.Select(documentColumns...).
		From(b.Table(documentsTable)).
		Where(entsql.EQ("id", id.String())).
		Limit(1).
		Query()

	docs, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	return docs[0], nil
}

// Transition applies t as a single conditional UPDATE so the status and its
// payload columns always change together.
func (r *documentRepo) Transition(ctx context.Context, id uuid.UUID, t Transition) (*entity.Document, error) {
	if len(t.From) == 0 {
		return nil, common.WrapError(common.ErrInvalidInput, "transition without source status")
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	u := r.builder().Update(documentsTable).
		Set("status", string(t.To)).
		Set("updated_at", formatTime(at))

	switch t.To {
	case constants.StatusPending, constants.StatusProcessing:
		u.Set("stage", string(constants.StageNone)).
			SetNull("processed_at").
			SetNull("processing_error").
			SetNull("raw_output").
			SetNull("processing_quality")
		if t.CountAttempt {
			u.Add("attempts", 1)
		}
	case constants.StatusCompleted:
		if len(t.RawOutput) == 0 {
			return nil, common.WrapError(common.ErrInvalidInput, "completed transition without raw_output")
		}
		u.Set("stage", string(constants.StageNone)).
			Set("processed_at", formatTime(at)).
			SetNull("processing_error").
			Set("raw_output", string(t.RawOutput)).
			Set("processing_quality", string(t.Quality))
	case constants.StatusFailed:
		msg := t.Error
		if msg == "" {
			msg = "unknown error"
		}
		u.Set("processed_at", formatTime(at)).
			Set("processing_error", msg).
			SetNull("raw_output").
			SetNull("processing_quality")
	default:
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("unknown status %q", t.To))
	}

	from := make([]any, 0, len(t.From))
	for _, s := range t.From {
		from = append(from, string(s))
	}
	q, args := u.Where(entsql.And(
		entsql.EQ("id", id.String()),
		entsql.In("status", from...),
	)).Query()

	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		r.log.Error("document transition failed", "document_id", id, "to", t.To, "err", err)
		return nil, fmt.Errorf("%w: transition document: %v", common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: transition document: %v", common.ErrDatabase, err)
	}

	doc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("document %s is %s, cannot move to %s: %w", id, doc.Status, t.To, common.ErrConflict)
	}
	r.log.Debug("document transitioned", "document_id", id, "status", t.To)
	return doc, nil
}

// SetStage only touches rows that are still PROCESSING.
func (r *documentRepo) SetStage(ctx context.Context, id uuid.UUID, stage constants.Stage) error {
	q, args := r.builder().Update(documentsTable).
		Set("stage", string(stage)).
		Set("updated_at", formatTime(time.Now().UTC())).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.StatusProcessing)),
		)).
		Query()

	var res sql.Result
	if err := r.db.drv.Exec(ctx, q, args, &res); err != nil {
		return fmt.Errorf("%w: set stage: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *documentRepo) ListByStatus(ctx context.Context, status constants.DocumentStatus, limit int) ([]*entity.Document, error) {
	b := r.builder()
	sel := b.Select(documentColumns...).
		From(b.Table(documentsTable)).
		Where(entsql.EQ("status", string(status))).
		OrderBy(entsql.Desc("uploaded_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()
	return r.query(ctx, q, args)
}

func (r *documentRepo) CountByStatus(ctx context.Context) (map[constants.DocumentStatus]int, error) {
	b := r.builder()
	q, args := b.Select("status", entsql.Count("*")).
		From(b.Table(documentsTable)).
		GroupBy("status").
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("%w: count documents: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make(map[constants.DocumentStatus]int, 4)
	for rows.Next() {
		var (
			s string
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", common.ErrDatabase, err)
		}
		out[constants.DocumentStatus(s)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: count documents: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *documentRepo) query(ctx context.Context, q string, args []any) ([]*entity.Document, error) {
	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, fmt.Errorf("%w: query documents: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var docs []*entity.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query documents: %v", common.ErrDatabase, err)
	}
	return docs, nil
}

func scanDocument(rows *entsql.Rows) (*entity.Document, error) {
	var (
		d                                        entity.Document
		id, category, status, stage              string
		uploadedAt, updatedAt                    string
		processedAt, procErr, rawOutput, quality sql.NullString
	)
	if err := rows.Scan(&id, &d.OwnerID, &d.OriginalFilename, &d.StorageRef, &d.MediaType, &category,
		&status, &stage, &uploadedAt, &processedAt, &procErr, &rawOutput, &quality, &d.Attempts, &updatedAt); err != nil {
		return nil, fmt.Errorf("%w: scan document: %v", common.ErrDatabase, err)
	}

	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: document id %q: %v", common.ErrDatabase, id, err)
	}
	d.Category = constants.Category(category)
	var ok bool
	if d.Status, ok = constants.ParseStatus(status); !ok {
		return nil, fmt.Errorf("%w: document %s has unknown status %q", common.ErrDatabase, id, status)
	}
	d.Stage = constants.Stage(stage)
	if d.UploadedAt, err = parseTime(uploadedAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t, err := parseTime(processedAt.String)
		if err != nil {
			return nil, err
		}
		d.ProcessedAt = &t
	}
	if procErr.Valid {
		s := procErr.String
		d.ProcessingError = &s
	}
	if rawOutput.Valid && rawOutput.String != "" {
		d.RawOutput = json.RawMessage(rawOutput.String)
	}
	if quality.Valid && quality.String != "" {
		q := constants.Quality(quality.String)
		d.ProcessingQuality = &q
	}
	return &d, nil
}

// fixed-width so text columns sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamps travel as RFC 3339 text so both dialects store them the same way.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q: %v", common.ErrDatabase, s, err)
	}
	return t.UTC(), nil
}
