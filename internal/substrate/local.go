// Package substrate is the ordered execution layer under the registry. A
// single commit loop applies submissions one at a time against a Backend,
// so the uniqueness check and the write are one step.
package substrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"docregistry/go-backend/internal/notify"
	"docregistry/go-backend/internal/platform/metrics"
	"docregistry/go-backend/internal/registry"
	"docregistry/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrUnknownPending = errors.New("unknown pending id")
	ErrWaitAbandoned  = errors.New("wait abandoned")
	ErrClosed         = errors.New("substrate closed")
)

const defaultRetention = 1024

// Backend is committed state. Insert must be all-or-nothing and must reject
// hashes that are already present.
type Backend interface {
	Insert(ctx context.Context, records []models.DocumentRecord) (uint64, error)
	Has(ctx context.Context, hash common.Hash) (bool, error)
	Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error)
	Count(ctx context.Context) (uint64, error)
	HashAt(ctx context.Context, index uint64) (common.Hash, bool, error)
	Close() error
}

type Options struct {
	// Retention bounds how many resolved submissions stay awaitable.
	Retention int
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Hub       *notify.Hub
	Now       func() time.Time
}

type task struct {
	id        string
	call      registry.Call
	submitted time.Time
	done      chan struct{}
	receipt   models.StoreReceipt
	err       error
}

type Local struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
	hub     *notify.Hub
	now     func() time.Time

	mu        sync.Mutex
	queue     []*task
	tasks     map[string]*task
	resolved  []string
	retention int
	closed    bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewLocal starts the commit loop. Close stops it and closes the backend.
func NewLocal(backend Backend, opts Options) *Local {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Hub == nil {
		opts.Hub = notify.NewHub(defaultRetention)
	}
	l := &Local{
		backend:   backend,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		hub:       opts.Hub,
		now:       opts.Now,
		tasks:     make(map[string]*task),
		retention: opts.Retention,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go l.run()
	return l
}

// Submit enqueues call and returns its pending id without waiting for commit.
func (l *Local) Submit(ctx context.Context, call registry.Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(call.Records) == 0 {
		return "", fmt.Errorf("submit %s: no records", call.Method)
	}
	t := &task{
		id:        uuid.NewString(),
		call:      call,
		submitted: l.now(),
		done:      make(chan struct{}),
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return "", ErrClosed
	}
	l.tasks[t.id] = t
	l.queue = append(l.queue, t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return t.id, nil
}

// Await blocks until the submission resolves or ctx ends. Giving up does not
// cancel the submission; it can be awaited again later.
func (l *Local) Await(ctx context.Context, pendingID string) (models.StoreReceipt, error) {
	l.mu.Lock()
	t, ok := l.tasks[pendingID]
	l.mu.Unlock()
	if !ok {
		return models.StoreReceipt{}, fmt.Errorf("%w: %s", ErrUnknownPending, pendingID)
	}
	select {
	case <-t.done:
		return t.receipt, t.err
	case <-ctx.Done():
		return models.StoreReceipt{}, fmt.Errorf("%w: %s: %w", ErrWaitAbandoned, pendingID, ctx.Err())
	}
}

func (l *Local) IsStored(ctx context.Context, hash common.Hash) (bool, error) {
	return l.backend.Has(ctx, hash)
}

func (l *Local) Get(ctx context.Context, hash common.Hash) (models.DocumentRecord, bool, error) {
	return l.backend.Get(ctx, hash)
}

func (l *Local) Count(ctx context.Context) (uint64, error) {
	return l.backend.Count(ctx)
}

func (l *Local) HashAt(ctx context.Context, index uint64) (common.Hash, bool, error) {
	return l.backend.HashAt(ctx, index)
}

// Subscribe replays stored-document events after cursor and streams new
// ones. A zero hash subscribes to every document.
func (l *Local) Subscribe(cursor int64, hash common.Hash) ([]notify.Event, <-chan notify.Event, func()) {
	filter := notify.Filter{Method: notify.MethodDocumentStored}
	if hash != (common.Hash{}) {
		filter.Key = hash.Hex()
	}
	return l.hub.Subscribe(cursor, filter)
}

// Close fails queued submissions with ErrClosed, waits for the loop, then
// closes the backend.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	close(l.stop)
	<-l.done
	return l.backend.Close()
}

func (l *Local) run() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			l.failQueued()
			return
		case <-l.wake:
		}
		for {
			t := l.next()
			if t == nil {
				break
			}
			l.commit(t)
			select {
			case <-l.stop:
				l.failQueued()
				return
			default:
			}
		}
	}
}

func (l *Local) next() *task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return t
}

func (l *Local) commit(t *task) {
	started := time.Now()
	first, err := l.backend.Insert(context.Background(), t.call.Records)
	l.metrics.ObserveCommit(time.Since(started))
	if err != nil {
		reason := registry.RejectReason(err)
		l.metrics.StoreRejected(reason)
		l.logger.Warn("store rejected",
			"pending_id", t.id,
			"method", t.call.Method,
			"documents", len(t.call.Records),
			"reason", reason,
			"error", err.Error(),
		)
		l.resolve(t, models.StoreReceipt{}, err)
		return
	}

	hashes := t.call.Hashes()
	receipt := models.StoreReceipt{
		PendingID:   t.id,
		Hashes:      hashes,
		FirstIndex:  first,
		CommittedAt: l.now(),
	}
	l.metrics.DocumentsStored(t.call.Method, len(hashes))
	l.logger.Info("store committed",
		"pending_id", t.id,
		"method", t.call.Method,
		"documents", len(hashes),
		"first_index", first,
		"queued_ms", started.Sub(t.submitted).Milliseconds(),
	)
	for i, rec := range t.call.Records {
		l.hub.Publish(notify.MethodDocumentStored, rec.Hash.Hex(), models.DocumentStoredEvent{
			Hash:      rec.Hash,
			Signer:    rec.Signer,
			Timestamp: rec.Timestamp,
			Index:     first + uint64(i),
		})
	}
	l.resolve(t, receipt, nil)
}

func (l *Local) resolve(t *task, receipt models.StoreReceipt, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.receipt = receipt
	t.err = err
	close(t.done)

	l.resolved = append(l.resolved, t.id)
	for len(l.resolved) > l.retention {
		delete(l.tasks, l.resolved[0])
		l.resolved = l.resolved[1:]
	}
}

func (l *Local) failQueued() {
	l.mu.Lock()
	queued := l.queue
	l.queue = nil
	l.mu.Unlock()
	for _, t := range queued {
		l.resolve(t, models.StoreReceipt{}, ErrClosed)
	}
}
