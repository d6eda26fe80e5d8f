// Package operations tracks long-running background work (crawls, letter
// batches, dispatch) so callers can poll by an opaque id. State lives in
// memory for the lifetime of the process.
package operations

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of an operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrUnknownOperation is returned for ids the board has never issued.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is a snapshot of one tracked operation.
type Operation struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Progress  int       `json:"progress"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Board is an in-memory operation registry. It is safe for concurrent use.
type Board struct {
	mu   sync.RWMutex
	ops  map[string]*Operation
	subs map[string][]chan Operation
	now  func() time.Time
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		ops:  make(map[string]*Operation),
		subs: make(map[string][]chan Operation),
		now:  time.Now,
	}
}

// Start registers a new operation of kind and returns its id.
func (b *Board) Start(kind string) string {
	now := b.now()
	op := &Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		StartedAt: now,
		UpdatedAt: now,
	}

	b.mu.Lock()
	b.ops[op.ID] = op
	b.mu.Unlock()
	return op.ID
}

// UpdateProgress records progress (clamped to 0-100) for a running operation.
// Updates to finished operations are ignored.
func (b *Board) UpdateProgress(id string, pct int, status Status, message string) error {
	pct = min(max(pct, 0), 100)
	return b.update(id, func(op *Operation) {
		op.Progress = pct
		if status != "" {
			op.Status = status
		}
		op.Message = message
	})
}

// Complete marks the operation finished with a terminal status.
func (b *Board) Complete(id string, status Status, message string) error {
	if !status.Terminal() {
		status = StatusSucceeded
	}
	return b.update(id, func(op *Operation) {
		if status == StatusSucceeded {
			op.Progress = 100
		}
		op.Status = status
		op.Message = message
	})
}

func (b *Board) update(id string, apply func(*Operation)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, ok := b.ops[id]
	if !ok {
		return ErrUnknownOperation
	}
	if op.Status.Terminal() {
		return nil
	}
	apply(op)
	op.UpdatedAt = b.now()

	snapshot := *op
	for _, ch := range b.subs[id] {
		select {
		case ch <- snapshot:
		default:
			// Slow subscriber; it will see the next update.
		}
	}
	if snapshot.Status.Terminal() {
		for _, ch := range b.subs[id] {
			close(ch)
		}
		delete(b.subs, id)
	}
	return nil
}

// Get returns a snapshot of the operation.
func (b *Board) Get(id string) (Operation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	op, ok := b.ops[id]
	if !ok {
		return Operation{}, ErrUnknownOperation
	}
	return *op, nil
}

// List returns snapshots of all operations, newest first.
func (b *Board) List() []Operation {
	b.mu.RLock()
	out := make([]Operation, 0, len(b.ops))
	for _, op := range b.ops {
		out = append(out, *op)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Subscribe returns a channel that receives every update to id until the
// operation finishes, at which point it is closed. The current state is sent
// first. The returned cancel func must be called if the caller stops early.
func (b *Board) Subscribe(id string) (<-chan Operation, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, ok := b.ops[id]
	if !ok {
		return nil, nil, ErrUnknownOperation
	}

	ch := make(chan Operation, 16)
	ch <- *op
	if op.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}
	b.subs[id] = append(b.subs[id], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[id]
			for i, c := range subs {
				if c == ch {
					b.subs[id] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
	return ch, cancel, nil
}
