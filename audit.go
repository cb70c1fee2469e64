package abac

import (
	"context"
	"sync"

	"github.com/oarkflow/abac/logger"
)

// AuditSink receives one PolicyLog per access check. Record is best-effort:
// the engine logs and discards any error, so implementations may fail without
// affecting decisions. An audit record is a diagnostic artifact, not a source
// of truth.
type AuditSink interface {
	Record(ctx context.Context, entry *PolicyLog) error
}

// StoreAuditSink writes decision logs straight to an AuditStore.
type StoreAuditSink struct {
	store AuditStore
}

func NewStoreAuditSink(store AuditStore) *StoreAuditSink {
	return &StoreAuditSink{store: store}
}

func (s *StoreAuditSink) Record(ctx context.Context, entry *PolicyLog) error {
	return s.store.InsertLog(ctx, entry)
}

// AsyncAuditSink decouples audit persistence from the decision path: Record
// queues the entry and returns immediately, a single worker drains the queue,
// and a full queue drops the entry rather than block. Delivery is therefore
// at-most-once.
type AsyncAuditSink struct {
	next AuditSink
	log  logger.Logger
	ch   chan *PolicyLog
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncAuditSink wraps next with a buffered worker. buffer <= 0 selects a
// default of 1024 entries.
func NewAsyncAuditSink(next AuditSink, buffer int, log logger.Logger) *AsyncAuditSink {
	if buffer <= 0 {
		buffer = 1024
	}
	if log == nil {
		log = logger.Null{}
	}
	s := &AsyncAuditSink{
		next: next,
		log:  log,
		ch:   make(chan *PolicyLog, buffer),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncAuditSink) run() {
	defer close(s.done)
	ctx := context.Background()
	for entry := range s.ch {
		if err := s.next.Record(ctx, entry); err != nil {
			s.log.Error("async audit write failed", "log_id", entry.ID, "error", err.Error())
		}
	}
}

// Record queues the entry without blocking; a full buffer drops it, and so
// does a sink that has already been closed.
func (s *AsyncAuditSink) Record(_ context.Context, entry *PolicyLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.log.Debug("audit sink closed, dropping entry", "log_id", entry.ID)
		return nil
	}
	select {
	case s.ch <- entry:
	default:
		s.log.Debug("audit queue full, dropping entry", "log_id", entry.ID)
	}
	return nil
}

// Close stops accepting entries and waits for the queue to drain. Safe to
// call more than once.
func (s *AsyncAuditSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	<-s.done
}
