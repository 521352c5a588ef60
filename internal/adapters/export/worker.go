package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cpgcore/internal/blob"
)

// Status describes the lifecycle stage of an export request.
type Status string

// Export states.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const defaultQueueSize = 32

// ErrStopped is returned for exports requested or still queued after Stop.
var ErrStopped = errors.New("export worker stopped")

// Artifact is one stored table rendering.
type Artifact struct {
	Key         string    `json:"key"`
	Table       string    `json:"table"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Rows        int       `json:"rows"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Tables      []string   `json:"tables"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	RequestedBy string     `json:"requested_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Keys returns the blob keys of the stored artifacts.
func (r Record) Keys() []string {
	keys := make([]string, len(r.Artifacts))
	for i, a := range r.Artifacts {
		keys[i] = a.Key
	}
	return keys
}

// Request asks for tables of one run to be exported.
type Request struct {
	RunID       string
	Tables      []Table
	Formats     []Format
	RequestedBy string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures the audit trail of an export.
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	RunID      string         `json:"run_id"`
	Status     Status         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithAuditLogger records lifecycle transitions to audit.
func WithAuditLogger(audit AuditLogger) WorkerOption {
	return func(w *Worker) { w.audit = audit }
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithQueueSize bounds the number of pending requests.
func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Worker renders and stores exports asynchronously, one request at a time.
type Worker struct {
	store     blob.Store
	audit     AuditLogger
	logger    *zap.Logger
	queueSize int

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record
	done  map[string]chan struct{}

	// stopMu orders Enqueue sends before Stop cancels the worker.
	stopMu sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id  string
	req Request
}

// NewWorker constructs an export worker writing to store.
func NewWorker(store blob.Store, opts ...WorkerOption) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:     store,
		logger:    zap.NewNop(),
		queueSize: defaultQueueSize,
		jobs:      make(map[string]*Record),
		done:      make(map[string]chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan task, w.queueSize)
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for the loop to exit. Exports
// still queued are marked failed with ErrStopped.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopMu.Lock()
	w.cancel()
	w.stopMu.Unlock()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		w.drain()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case t := <-w.queue:
			w.fail(t.id, ErrStopped.Error())
		default:
			return
		}
	}
}

// Enqueue schedules an export and returns the queued record. It returns
// ErrStopped once Stop has been called.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	if w.store == nil {
		return Record{}, fmt.Errorf("export store not configured")
	}
	if strings.TrimSpace(req.RunID) == "" {
		return Record{}, fmt.Errorf("run id required")
	}
	if len(req.Tables) == 0 {
		return Record{}, fmt.Errorf("no tables to export")
	}
	w.stopMu.RLock()
	defer w.stopMu.RUnlock()
	if w.ctx.Err() != nil {
		return Record{}, ErrStopped
	}
	formats := req.Formats
	if len(formats) == 0 {
		formats = []Format{FormatCSV}
	}
	names := make([]string, len(req.Tables))
	for i, t := range req.Tables {
		names[i] = t.Name
	}

	now := time.Now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		RunID:       req.RunID,
		Tables:      names,
		Formats:     append([]Format(nil), formats...),
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req.Formats = record.Formats

	w.mu.Lock()
	w.jobs[record.ID] = &record
	w.done[record.ID] = make(chan struct{})
	queued := record.copy()
	w.mu.Unlock()
	w.recordAudit(ctx, queued, nil)

	select {
	case w.queue <- task{id: record.ID, req: req}:
	default:
		w.fail(record.ID, "export queue full")
		return Record{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// Wait blocks until export id finishes or ctx ends.
func (w *Worker) Wait(ctx context.Context, id string) (Record, error) {
	w.mu.RLock()
	done, ok := w.done[id]
	w.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("export %s not found", id)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
	record, _ := w.Get(id)
	if record.Status == StatusFailed {
		return record, errors.New(record.Error)
	}
	return record, nil
}

func (w *Worker) process(t task) {
	w.updateStatus(t.id, StatusRunning)
	artifacts := make([]Artifact, 0, len(t.req.Tables)*len(t.req.Formats))
	for _, table := range t.req.Tables {
		for _, format := range t.req.Formats {
			artifact, err := w.storeTable(t.req.RunID, table, format)
			if err != nil {
				w.fail(t.id, err.Error())
				return
			}
			artifacts = append(artifacts, artifact)
		}
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) storeTable(runID string, table Table, format Format) (Artifact, error) {
	payload, err := Render(format, table)
	if err != nil {
		return Artifact{}, fmt.Errorf("render %s as %s: %w", table.Name, format, err)
	}
	key := Key(runID, table.Name, format)
	info, err := w.store.Put(w.ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: format.ContentType(),
		Metadata:    map[string]string{"run_id": runID, "table": table.Name},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", key, err)
	}
	artifact := Artifact{
		Key:         key,
		Table:       table.Name,
		Format:      format,
		ContentType: format.ContentType(),
		SizeBytes:   info.Size,
		Rows:        len(table.Rows),
		URL:         info.URL,
		CreatedAt:   info.LastModified,
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now().UTC()
	}
	if url, err := w.store.PresignURL(w.ctx, key, blob.SignedURLOptions{}); err == nil {
		artifact.URL = url
	} else if !errors.Is(err, blob.ErrUnsupported) {
		w.logger.Debug("presign artifact", zap.String("key", key), zap.Error(err))
	}
	w.logger.Debug("artifact stored", zap.String("key", key), zap.Int64("bytes", artifact.SizeBytes))
	return artifact, nil
}

// Key is the blob key of a table rendering.
func Key(runID, table string, format Format) string {
	return fmt.Sprintf("runs/%s/%s.%s", runID, table, format)
}

func (w *Worker) updateStatus(id string, status Status) {
	w.transition(id, func(r *Record) { r.Status = status }, false)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	w.transition(id, func(r *Record) {
		r.Status = StatusSucceeded
		r.Error = ""
		r.Artifacts = artifacts
	}, true)
}

func (w *Worker) fail(id, reason string) {
	w.logger.Warn("export failed", zap.String("export_id", id), zap.String("error", reason))
	w.transition(id, func(r *Record) {
		r.Status = StatusFailed
		r.Error = reason
	}, true)
}

func (w *Worker) transition(id string, mutate func(*Record), final bool) {
	now := time.Now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	mutate(record)
	record.UpdatedAt = now
	if final {
		record.CompletedAt = &now
	}
	snapshot := record.copy()
	done := w.done[id]
	w.mu.Unlock()

	var meta map[string]any
	if snapshot.Error != "" {
		meta = map[string]any{"error": snapshot.Error}
	} else if final {
		meta = map[string]any{"artifacts": len(snapshot.Artifacts)}
	}
	w.recordAudit(w.ctx, snapshot, meta)
	if final && done != nil {
		close(done)
	}
}

func (w *Worker) recordAudit(ctx context.Context, r Record, meta map[string]any) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "run_export",
		Actor:      r.RequestedBy,
		RunID:      r.RunID,
		Status:     r.Status,
		Metadata:   meta,
		OccurredAt: r.UpdatedAt,
	})
}

func (r Record) copy() Record {
	dup := r
	dup.Tables = append([]string(nil), r.Tables...)
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return dup
}

// MemoryAuditLog captures audit entries in memory.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}
