package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tapeview/internal/blob"
	"tapeview/internal/core"
	"tapeview/pkg/domain"
)

// ExportFormat names an export serialisation.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

func (f ExportFormat) contentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// ParseExportFormat resolves a case-insensitive format name.
func ParseExportFormat(name string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(name))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact is one stored serialisation of an exported live set.
type ExportArtifact struct {
	Key         string       `json:"key"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	ETag        string       `json:"etag,omitempty"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and its artifacts.
type ExportRecord struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	Generation  uint64            `json:"generation"`
	Rows        int               `json:"rows"`
	Controls    core.ControlsView `json:"controls"`
	Formats     []ExportFormat    `json:"formats"`
	Status      ExportStatus      `json:"status"`
	Error       string            `json:"error,omitempty"`
	Artifacts   []ExportArtifact  `json:"artifacts,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]ExportFormat(nil), r.Formats...)
	dup.Controls.SelectedDatasetIDs = append([]string(nil), r.Controls.SelectedDatasetIDs...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		dup.CompletedAt = &at
	}
	return dup
}

// StoredArtifact is an artifact found in the blob store under a session
// prefix. It outlives the worker's export records.
type StoredArtifact struct {
	ExportArtifact
	ExportID   string `json:"export_id"`
	Generation uint64 `json:"generation"`
	Rows       int    `json:"rows"`
}

// ExportScheduler queues live-set exports and exposes their status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, sessionID string, live core.LiveSet, formats []ExportFormat) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
	OpenArtifact(ctx context.Context, id string, format ExportFormat) (ExportArtifact, io.ReadCloser, error)
	ListArtifacts(ctx context.Context, sessionID string) ([]StoredArtifact, error)
}

var (
	// ErrExportNotFound is returned for unknown exports or formats.
	ErrExportNotFound = errors.New("export not found")
	// ErrWorkerStopped is returned for exports submitted to a stopped worker.
	ErrWorkerStopped = errors.New("export worker stopped")
)

const (
	// DefaultQueueSize bounds pending exports.
	DefaultQueueSize = 32
	// DefaultRetainedExports bounds finished export records kept in memory.
	DefaultRetainedExports = 256
)

// Worker writes exported live sets to a blob store on its own goroutine.
// Each task carries an immutable live set, so exports never observe later
// control changes.
type Worker struct {
	store  blob.Store
	logger *zap.Logger
	newID  func() string

	queue    chan exportTask
	mu       sync.RWMutex
	jobs     map[string]*ExportRecord
	finished []string
	retain   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id   string
	live core.LiveSet
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithQueueSize bounds the number of pending exports.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan exportTask, n)
		}
	}
}

// WithRetainedExports bounds how many finished export records stay
// queryable; the oldest are forgotten first. Stored artifacts remain
// listable per session.
func WithRetainedExports(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.retain = n
		}
	}
}

// NewWorker constructs an export worker over store.
func NewWorker(store blob.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:  store,
		logger: zap.NewNop(),
		newID:  uuid.NewString,
		queue:  make(chan exportTask, DefaultQueueSize),
		jobs:   make(map[string]*ExportRecord),
		retain: DefaultRetainedExports,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion. Exports still
// queued are marked failed.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.cancel()
	w.mu.Unlock()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.drain()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) drain() {
	for {
		select {
		case task := <-w.queue:
			w.fail(task.id, ErrWorkerStopped.Error())
		default:
			return
		}
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export of live and returns the queued record.
// Formats default to csv and json; duplicates are dropped.
func (w *Worker) EnqueueExport(_ context.Context, sessionID string, live core.LiveSet, formats []ExportFormat) (ExportRecord, error) {
	if w.store == nil {
		return ExportRecord{}, fmt.Errorf("export store not configured")
	}
	if len(formats) == 0 {
		formats = []ExportFormat{FormatCSV, FormatJSON}
	}
	uniq := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{}, len(formats))
	for _, format := range formats {
		if _, err := ParseExportFormat(string(format)); err != nil {
			return ExportRecord{}, err
		}
		if _, dup := seen[format]; dup {
			continue
		}
		seen[format] = struct{}{}
		uniq = append(uniq, format)
	}

	now := time.Now().UTC()
	record := ExportRecord{
		ID:         w.newID(),
		SessionID:  sessionID,
		Generation: live.Generation(),
		Rows:       live.Len(),
		Controls:   live.Controls().View(),
		Formats:    uniq,
		Status:     ExportStatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return ExportRecord{}, ErrWorkerStopped
	}
	w.jobs[record.ID] = &record
	queued := record.copy()
	select {
	case w.queue <- exportTask{id: record.ID, live: live}:
		w.mu.Unlock()
	default:
		w.mu.Unlock()
		w.fail(record.ID, "export queue full")
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	w.logger.Info("export queued",
		zap.String("export", record.ID),
		zap.String("session", sessionID),
		zap.Uint64("generation", record.Generation),
		zap.Int("rows", record.Rows))
	return queued, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

// OpenArtifact streams a stored artifact of a finished export. The returned
// artifact carries the size and ETag currently held by the store.
func (w *Worker) OpenArtifact(ctx context.Context, id string, format ExportFormat) (ExportArtifact, io.ReadCloser, error) {
	record, ok := w.GetExport(id)
	if !ok {
		return ExportArtifact{}, nil, ErrExportNotFound
	}
	for _, artifact := range record.Artifacts {
		if artifact.Format != format {
			continue
		}
		info, err := w.store.Head(ctx, artifact.Key)
		if errors.Is(err, blob.ErrNotFound) {
			return ExportArtifact{}, nil, ErrExportNotFound
		}
		if err != nil {
			return ExportArtifact{}, nil, fmt.Errorf("stat artifact %s: %w", artifact.Key, err)
		}
		_, body, err := w.store.Get(ctx, artifact.Key)
		if err != nil {
			return ExportArtifact{}, nil, fmt.Errorf("open artifact %s: %w", artifact.Key, err)
		}
		artifact.SizeBytes = info.Size
		artifact.ETag = info.ETag
		if info.ContentType != "" {
			artifact.ContentType = info.ContentType
		}
		return artifact, body, nil
	}
	return ExportArtifact{}, nil, ErrExportNotFound
}

// ListArtifacts returns every artifact stored for sessionID, ordered by key.
// Objects under the session prefix that are not export artifacts are skipped.
func (w *Worker) ListArtifacts(ctx context.Context, sessionID string) ([]StoredArtifact, error) {
	if w.store == nil {
		return nil, fmt.Errorf("export store not configured")
	}
	prefix := sessionPrefix(sessionID)
	infos, err := w.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list artifacts for session %s: %w", sessionID, err)
	}
	out := make([]StoredArtifact, 0, len(infos))
	for _, listed := range infos {
		name := strings.TrimPrefix(listed.Key, prefix)
		ext := path.Ext(name)
		format, err := ParseExportFormat(strings.TrimPrefix(ext, "."))
		if err != nil || strings.Contains(name, "/") || len(name) == len(ext) {
			continue
		}
		info, err := w.store.Head(ctx, listed.Key)
		if errors.Is(err, blob.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat artifact %s: %w", listed.Key, err)
		}
		stored := StoredArtifact{
			ExportArtifact: ExportArtifact{
				Key:         info.Key,
				Format:      format,
				ContentType: info.ContentType,
				SizeBytes:   info.Size,
				ETag:        info.ETag,
				CreatedAt:   info.LastModified,
			},
			ExportID: strings.TrimSuffix(name, ext),
		}
		if stored.ContentType == "" {
			stored.ContentType = format.contentType()
		}
		stored.Generation, _ = strconv.ParseUint(info.Metadata[metaGeneration], 10, 64)
		stored.Rows, _ = strconv.Atoi(info.Metadata[metaRows])
		if url, err := w.store.PresignURL(ctx, listed.Key, blob.SignedURLOptions{}); err == nil {
			stored.URL = url
		}
		out = append(out, stored)
	}
	return out, nil
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}
	w.updateStatus(task.id, ExportStatusRunning)

	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, err := materialize(format, record, task.live)
		if err != nil {
			w.fail(task.id, err.Error())
			return
		}
		key := artifactKey(record, format)
		info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: format.contentType(),
			Metadata: map[string]string{
				metaSession:    record.SessionID,
				metaGeneration: strconv.FormatUint(record.Generation, 10),
				metaRows:       strconv.Itoa(record.Rows),
			},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifact := ExportArtifact{
			Key:         info.Key,
			Format:      format,
			ContentType: format.contentType(),
			SizeBytes:   info.Size,
			ETag:        info.ETag,
			CreatedAt:   info.LastModified,
		}
		if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
			artifact.URL = url
		} else if !errors.Is(err, blob.ErrUnsupported) {
			w.logger.Warn("presign export artifact failed", zap.String("key", key), zap.Error(err))
		}
		artifacts = append(artifacts, artifact)
	}
	w.complete(task.id, artifacts)
}

// Artifact metadata keys.
const (
	metaSession    = "session"
	metaGeneration = "generation"
	metaRows       = "rows"
)

func sessionPrefix(sessionID string) string {
	return "exports/" + sessionID + "/"
}

func artifactKey(record ExportRecord, format ExportFormat) string {
	return fmt.Sprintf("%s%s.%s", sessionPrefix(record.SessionID), record.ID, format)
}

func (w *Worker) updateStatus(id string, status ExportStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.UpdatedAt = time.Now().UTC()
	}
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok && record.CompletedAt == nil {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		w.retireLocked(id)
	}
	w.mu.Unlock()
	w.logger.Info("export succeeded", zap.String("export", id), zap.Int("artifacts", len(artifacts)))
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok && record.CompletedAt == nil {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
		w.retireLocked(id)
	}
	w.mu.Unlock()
	w.logger.Error("export failed", zap.String("export", id), zap.String("reason", reason))
}

// retireLocked records id as finished and forgets the oldest finished
// records beyond the retention bound. w.mu must be held.
func (w *Worker) retireLocked(id string) {
	w.finished = append(w.finished, id)
	for len(w.finished) > w.retain {
		delete(w.jobs, w.finished[0])
		w.finished = w.finished[1:]
	}
}

// exportColumns is the column order of CSV exports.
var exportColumns = []string{"dataset_id", "well_id", "peak_mol", "int_area", "size", "cal_conc", "avg_size"}

type exportDocument struct {
	ExportID   string            `json:"export_id"`
	SessionID  string            `json:"session_id"`
	Generation uint64            `json:"generation"`
	Controls   core.ControlsView `json:"controls"`
	Rows       []domain.Record   `json:"rows"`
}

func materialize(format ExportFormat, record ExportRecord, live core.LiveSet) ([]byte, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(exportDocument{
			ExportID:   record.ID,
			SessionID:  record.SessionID,
			Generation: record.Generation,
			Controls:   record.Controls,
			Rows:       live.Rows(),
		})
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return payload, nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		if err := writeCSV(buf, live); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %s", format)
	}
}

func writeCSV(w io.Writer, live core.LiveSet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(exportColumns); err != nil {
		return err
	}
	for i := 0; i < live.Len(); i++ {
		row := live.Row(i)
		if err := writer.Write([]string{
			row.DatasetID,
			row.WellID,
			formatValue(row.PeakMolarity),
			formatValue(row.IntegratedAreaPct),
			formatValue(row.Size),
			formatValue(row.CalibratedConcentration),
			formatValue(row.AvgRegionSize),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// formatValue renders a nullable measurement; absent values are empty.
func formatValue(v domain.NullFloat) string {
	f, ok := v.Get()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
