package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/salsowa/smarthome-core/internal/hierarchy"
)

// defaultQueueSize bounds the number of entries waiting to be written.
const defaultQueueSize = 256

// writeTimeout bounds a single insert.
const writeTimeout = 5 * time.Second

// Entry sources.
const (
	// SourceAPI tags mutations that arrived over the HTTP API.
	SourceAPI = "api"
)

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder turns hierarchy changes into audit entries and writes them
// asynchronously. It implements hierarchy.Observer.
type Recorder struct {
	repo   Repository
	source string
	logger Logger

	queue chan *Entry
	done  chan struct{}
	once  sync.Once
}

var _ hierarchy.Observer = (*Recorder)(nil)

// NewRecorder returns a recorder that tags entries with source, SourceAPI
// for mutations arriving over HTTP. Call Run before registering it.
func NewRecorder(repo Repository, source string) *Recorder {
	return &Recorder{
		repo:   repo,
		source: source,
		logger: noopLogger{},
		queue:  make(chan *Entry, defaultQueueSize),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for dropped entries and write failures.
func (r *Recorder) SetLogger(l Logger) {
	r.logger = l
}

// OnChange queues an entry for change. It never blocks.
func (r *Recorder) OnChange(_ context.Context, change hierarchy.Change) {
	e := &Entry{
		Action:     string(change.Action),
		EntityType: string(change.Kind),
		EntityID:   change.ID,
		Path:       change.Path,
		Source:     r.source,
		Details:    entityDetails(change.Entity),
		CreatedAt:  time.Now().UTC(),
	}

	select {
	case r.queue <- e:
	default:
		r.logger.Warn("audit queue full, dropping entry", "action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID)
	}
}

// Run writes queued entries until ctx is cancelled, then drains whatever is
// left and returns. Run it in its own goroutine.
func (r *Recorder) Run(ctx context.Context) {
	defer r.once.Do(func() { close(r.done) })
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, e); err != nil {
		r.logger.Error("audit log write failed", "action", e.Action, "entity_type", e.EntityType, "error", err)
	}
}

// entityDetails converts an entity snapshot into the JSON object stored in
// the details column.
func entityDetails(entity any) map[string]any {
	if entity == nil {
		return nil
	}
	b, err := json.Marshal(entity)
	if err != nil {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return nil
	}
	return m
}
