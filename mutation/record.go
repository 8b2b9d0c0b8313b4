package mutation

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Kind names a state-changing action.
type Kind string

const (
	KindCreate   Kind = "create"
	KindFreemint Kind = "freemint"
)

// Status is the lifecycle state of a mutation.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether s is confirmed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// maxEvents bounds the transitions of one record: submitted, pending, terminal.
const maxEvents = 3

// Event is a snapshot of a record taken at one transition.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Kind         Kind            `json:"kind"`
	Target       common.Address  `json:"target"`
	Status       Status          `json:"status"`
	TxHash       *common.Hash    `json:"txHash,omitempty"`
	CreatedToken *common.Address `json:"createdToken,omitempty"`
	Error        string          `json:"error,omitempty"`
	At           time.Time       `json:"at"`
}

// Record tracks one mutation from submission to its terminal status.
// It is safe for concurrent use.
type Record struct {
	ID     uuid.UUID
	Kind   Kind
	Target common.Address

	mutex        sync.Mutex
	status       Status
	txHash       *common.Hash
	createdToken *common.Address
	err          error
	updatedAt    time.Time
	subscribers  []chan Event
	done         chan struct{}
}

func newRecord(kind Kind, target common.Address) *Record {
	return &Record{
		ID:        uuid.New(),
		Kind:      kind,
		Target:    target,
		status:    StatusSubmitted,
		updatedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Status returns the current status.
func (r *Record) Status() Status {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.status
}

// Err returns the failure cause of a failed record.
func (r *Record) Err() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.err
}

// TxHash returns the transaction hash once the record is pending.
func (r *Record) TxHash() *common.Hash {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.txHash
}

// Snapshot returns the current state as an Event.
func (r *Record) Snapshot() Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.snapshot()
}

// Subscribe returns a channel receiving the current state followed by every
// later transition. The channel is closed after the terminal event. The
// returned function unsubscribes early.
func (r *Record) Subscribe() (<-chan Event, func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan Event, maxEvents)
	ch <- r.snapshot()
	if r.status.IsTerminal() {
		close(ch)
		return ch, func() {}
	}

	r.subscribers = append(r.subscribers, ch)
	return ch, func() { r.unsubscribe(ch) }
}

// Wait blocks until the record is terminal or ctx is done.
func (r *Record) Wait(ctx context.Context) (Event, error) {
	select {
	case <-r.done:
		return r.Snapshot(), nil
	case <-ctx.Done():
		return r.Snapshot(), ctx.Err()
	}
}

func (r *Record) unsubscribe(ch chan Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, sub := range r.subscribers {
		if sub == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// transition moves the record to status and notifies subscribers.
// Transitions out of a terminal status are ignored.
func (r *Record) transition(status Status, update func(r *Record)) (Event, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.status.IsTerminal() {
		return r.snapshot(), false
	}

	r.status = status
	r.updatedAt = time.Now()
	if update != nil {
		update(r)
	}

	event := r.snapshot()
	for _, sub := range r.subscribers {
		// Buffers hold every possible event, so this never blocks.
		sub <- event
	}
	if status.IsTerminal() {
		for _, sub := range r.subscribers {
			close(sub)
		}
		r.subscribers = nil
		close(r.done)
	}
	return event, true
}

func (r *Record) snapshot() Event {
	event := Event{
		ID:           r.ID,
		Kind:         r.Kind,
		Target:       r.Target,
		Status:       r.status,
		TxHash:       r.txHash,
		CreatedToken: r.createdToken,
		At:           r.updatedAt,
	}
	if r.err != nil {
		event.Error = r.err.Error()
	}
	return event
}
