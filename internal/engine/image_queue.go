package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/scrypster/lorewiki/internal/llm"
	"github.com/scrypster/lorewiki/internal/logger"
	"github.com/scrypster/lorewiki/internal/storage"
	"github.com/scrypster/lorewiki/internal/world"
)

// ImageStatus is the lifecycle state reported for an image job.
type ImageStatus string

const (
	ImageQueued    ImageStatus = "queued"
	ImageCompleted ImageStatus = "completed"
	ImageFailed    ImageStatus = "failed"
)

// ErrQueueFull is returned by Enqueue when the job buffer is full.
var ErrQueueFull = errors.New("image queue full")

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("image queue closed")

// ImageJob asks for one article illustration.
type ImageJob struct {
	ID        string
	World     *world.Handle
	ArticleID string
	Title     string
	Prompt    string
	Caption   string
	Model     string

	// Attempt counts failed runs so far.
	Attempt int
}

// ImageEvent reports a job transition to subscribers.
type ImageEvent struct {
	JobID     string      `json:"job_id"`
	World     string      `json:"world"`
	ArticleID string      `json:"article_id"`
	Title     string      `json:"title"`
	Status    ImageStatus `json:"status"`
	ImageRef  string      `json:"image_ref,omitempty"`
	Error     string      `json:"error,omitempty"`
	At        time.Time   `json:"at"`
}

// ImageQueueConfig sizes the worker pool.
type ImageQueueConfig struct {
	Workers         int
	QueueSize       int
	MaxRetries      int
	BaseBackoff     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultImageQueueConfig returns the defaults used by the server.
func DefaultImageQueueConfig() ImageQueueConfig {
	return ImageQueueConfig{
		Workers:         2,
		QueueSize:       100,
		MaxRetries:      2,
		BaseBackoff:     500 * time.Millisecond,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ImageQueue runs image synthesis off the request path. A job failure never
// touches the article beyond leaving it without an image.
type ImageQueue struct {
	gen    llm.ImageGenerator
	config ImageQueueConfig
	tracer trace.Tracer
	log    *logger.Logger

	mu      sync.RWMutex
	jobs    chan *ImageJob
	closed  bool
	started bool

	workerCtx    context.Context
	workerCancel context.CancelFunc
	wg           sync.WaitGroup

	subMu  sync.Mutex
	subs   map[int]func(ImageEvent)
	nextID int
}

// NewImageQueue returns a stopped queue. Call Start to run workers.
func NewImageQueue(gen llm.ImageGenerator, config ImageQueueConfig, log *logger.Logger) *ImageQueue {
	d := DefaultImageQueueConfig()
	if config.Workers <= 0 {
		config.Workers = d.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = d.QueueSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = d.BaseBackoff
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = d.ShutdownTimeout
	}
	return &ImageQueue{
		gen:    gen,
		config: config,
		tracer: noop.NewTracerProvider().Tracer(""),
		log:    log,
		jobs:   make(chan *ImageJob, config.QueueSize),
		subs:   make(map[int]func(ImageEvent)),
	}
}

// SetTracer replaces the no-op tracer.
func (q *ImageQueue) SetTracer(t trace.Tracer) {
	q.tracer = t
}

// Start launches the workers. It is a no-op when already started. Workers
// keep ctx's values but not its cancellation: only Stop ends them, after
// draining the buffered jobs.
func (q *ImageQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.workerCtx, q.workerCancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.log.Info("image workers started", "workers", q.config.Workers, "queue_size", q.config.QueueSize)
}

// Enqueue schedules job without blocking. It fills in ID when empty.
func (q *ImageQueue) Enqueue(job *ImageJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
	default:
		q.log.Warn("image queue full, dropping job", "world", job.World.Name, "title", job.Title, "queue_size", q.config.QueueSize)
		return ErrQueueFull
	}

	q.emit(job, ImageQueued, "", nil)
	return nil
}

// Len returns the number of buffered jobs.
func (q *ImageQueue) Len() int {
	return len(q.jobs)
}

// Subscribe registers fn for every job event. The returned function
// removes it. fn runs on a worker goroutine and must not block.
func (q *ImageQueue) Subscribe(fn func(ImageEvent)) func() {
	q.subMu.Lock()
	id := q.nextID
	q.nextID++
	q.subs[id] = fn
	q.subMu.Unlock()

	return func() {
		q.subMu.Lock()
		delete(q.subs, id)
		q.subMu.Unlock()
	}
}

// Stop closes the queue and waits for workers to drain, up to the
// shutdown timeout or ctx, whichever is first.
func (q *ImageQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(q.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		q.log.Info("image workers finished")
		q.workerCancel()
		return nil
	case <-timer.C:
		q.log.Warn("image queue shutdown timeout, abandoning jobs", "remaining", q.Len())
		q.workerCancel()
		return nil
	case <-ctx.Done():
		q.log.Warn("image queue shutdown cancelled, abandoning jobs", "remaining", q.Len())
		q.workerCancel()
		return ctx.Err()
	}
}

func (q *ImageQueue) worker(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.process(id, job)
	}
}

func (q *ImageQueue) process(workerID int, job *ImageJob) {
	ctx, span := q.tracer.Start(q.workerCtx, "engine.image", trace.WithAttributes(
		attribute.String("world", job.World.Name),
		attribute.String("title", job.Title),
		attribute.String("job_id", job.ID),
	))
	defer span.End()

	for {
		if job.Attempt > 0 {
			backoff := time.Duration(job.Attempt*job.Attempt) * q.config.BaseBackoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				q.fail(span, job, ctx.Err())
				return
			}
		}

		ref, err := q.run(ctx, job)
		if err == nil {
			q.log.Info("image attached", "worker", workerID, "world", job.World.Name, "title", job.Title, "image_ref", ref)
			q.emit(job, ImageCompleted, ref, nil)
			return
		}
		if errors.Is(err, storage.ErrNotFound) || job.Attempt >= q.config.MaxRetries || ctx.Err() != nil {
			q.fail(span, job, err)
			return
		}
		job.Attempt++
		q.log.Warn("image job failed, retrying", "worker", workerID, "world", job.World.Name,
			"title", job.Title, "attempt", job.Attempt, "max_retries", q.config.MaxRetries, "error", err)
	}
}

func (q *ImageQueue) fail(span trace.Span, job *ImageJob, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	q.log.Warn("image job abandoned", "world", job.World.Name, "title", job.Title, "attempts", job.Attempt+1, "error", err)
	q.emit(job, ImageFailed, "", err)
}

// run synthesizes, stores the file and attaches it. If the article was
// deleted meanwhile the file is removed and storage.ErrNotFound returned.
func (q *ImageQueue) run(ctx context.Context, job *ImageJob) (string, error) {
	img, err := q.gen.GenerateImage(ctx, job.Prompt, job.Model)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	if len(img.Bytes) == 0 {
		return "", fmt.Errorf("generate image: %w: empty image", llm.ErrMalformedOutput)
	}

	if err := os.MkdirAll(job.World.ImagesDir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}
	ref := uuid.NewString() + imageExtension(img.MimeType)
	path := filepath.Join(job.World.ImagesDir, ref)
	if err := os.WriteFile(path, img.Bytes, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	if err := job.World.Store.SetImage(ctx, job.ArticleID, ref, job.Caption); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("attach image: %w", err)
	}
	return ref, nil
}

func (q *ImageQueue) emit(job *ImageJob, status ImageStatus, ref string, err error) {
	ev := ImageEvent{
		JobID:     job.ID,
		World:     job.World.Name,
		ArticleID: job.ArticleID,
		Title:     job.Title,
		Status:    status,
		ImageRef:  ref,
		At:        time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}

	q.subMu.Lock()
	fns := make([]func(ImageEvent), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
