package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/metrics"
)

// ErrManagerClosed is returned by Submit once Close has been called.
var ErrManagerClosed = fmt.Errorf("%w: mutation manager closed", interfaces.ErrMutationRejected)

// Invalidator drops cached chain-derived views.
type Invalidator interface {
	Invalidate()
}

// Params carries the user-supplied arguments of a mutation.
type Params struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type actionKey struct {
	kind   Kind
	target common.Address
}

// Manager submits mutations and tracks them to completion.
type Manager struct {
	transactor  interfaces.TokenTransactor
	invalidator Invalidator
	log         *slog.Logger
	metrics     *metrics.Metrics

	mutex    sync.Mutex
	closed   bool
	inFlight map[actionKey]*Record
	latest   map[actionKey]*Record
	records  map[uuid.UUID]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager.
//
// Parameters:
//   - transactor: Write access to the factory and tokens
//   - invalidator: Cache invalidated after every confirmed mutation
//   - log: Structured logger
//   - m: Metrics collectors, may be nil
func NewManager(transactor interfaces.TokenTransactor, invalidator Invalidator, log *slog.Logger, m *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		transactor:  transactor,
		invalidator: invalidator,
		log:         log,
		metrics:     m,
		inFlight:    make(map[actionKey]*Record),
		latest:      make(map[actionKey]*Record),
		records:     make(map[uuid.UUID]*Record),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// CreateToken submits createConfidentialToken on the factory.
func (m *Manager) CreateToken(ctx context.Context, name, symbol string) (*Record, error) {
	return m.Submit(ctx, KindCreate, m.transactor.Factory(), Params{Name: name, Symbol: symbol})
}

// Freemint submits freemint on token.
func (m *Manager) Freemint(ctx context.Context, token common.Address) (*Record, error) {
	return m.Submit(ctx, KindFreemint, token, Params{})
}

// Submit validates and sends a mutation. It returns once the transaction is
// sent (pending) or the mutation has failed; confirmation is tracked in the
// background. While a mutation of the same kind on the same target is
// submitted or pending, Submit fails with ErrMutationInFlight without
// contacting the chain.
//
// A new record replaces the previous one for the same kind and target, which
// then no longer resolves through Get. After Close, Submit fails with
// ErrManagerClosed.
//
// When the mutation fails, both the failed record and its error are returned.
func (m *Manager) Submit(ctx context.Context, kind Kind, target common.Address, params Params) (*Record, error) {
	key := actionKey{kind: kind, target: target}

	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return nil, ErrManagerClosed
	}
	if existing, ok := m.inFlight[key]; ok && !existing.Status().IsTerminal() {
		m.mutex.Unlock()
		m.log.Debug("mutation rejected, already in flight", "kind", kind, "target", target.Hex(), "inFlight", existing.ID)
		return nil, interfaces.ErrMutationInFlight
	}
	record := newRecord(kind, target)
	if previous, ok := m.latest[key]; ok {
		delete(m.records, previous.ID)
	}
	m.inFlight[key] = record
	m.latest[key] = record
	m.records[record.ID] = record
	m.wg.Add(1)
	m.mutex.Unlock()

	m.metrics.ObserveMutation(string(kind), string(StatusSubmitted))
	log := m.log.With("mutation", record.ID, "kind", kind, "target", target.Hex())

	tx, err := m.send(ctx, kind, target, params)
	if err != nil {
		m.finish(key, record, StatusFailed, func(r *Record) { r.err = err })
		m.wg.Done()
		log.Warn("mutation failed before inclusion", "err", err)
		return record, err
	}

	txHash := tx.Hash()
	record.transition(StatusPending, func(r *Record) { r.txHash = &txHash })
	m.metrics.ObserveMutation(string(kind), string(StatusPending))
	log.Info("mutation pending", "tx", txHash.Hex())

	go m.await(key, record, tx, log)

	return record, nil
}

// Get returns the record with the given ID.
func (m *Manager) Get(id uuid.UUID) (*Record, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	record, ok := m.records[id]
	return record, ok
}

// Latest returns the most recent record for kind on target.
func (m *Manager) Latest(kind Kind, target common.Address) (*Record, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	record, ok := m.latest[actionKey{kind: kind, target: target}]
	return record, ok
}

// Close stops accepting submissions and stops waiting for pending
// transactions; their records fail with context.Canceled. It blocks until all
// background work has returned.
func (m *Manager) Close() {
	m.mutex.Lock()
	m.closed = true
	m.mutex.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) send(ctx context.Context, kind Kind, target common.Address, params Params) (*types.Transaction, error) {
	if !m.transactor.CanTransact() {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMutationRejected, interfaces.ErrNoTransactOpts)
	}

	var (
		tx  *types.Transaction
		err error
	)
	switch kind {
	case KindCreate:
		name, symbol, verr := NormalizeTokenParams(params.Name, params.Symbol)
		if verr != nil {
			return nil, verr
		}
		tx, err = m.transactor.CreateConfidentialToken(ctx, name, symbol)
	case KindFreemint:
		if target == (common.Address{}) {
			return nil, fmt.Errorf("%w: token address required", interfaces.ErrMutationRejected)
		}
		tx, err = m.transactor.Freemint(ctx, target)
	default:
		return nil, fmt.Errorf("%w: unknown mutation kind %q", interfaces.ErrMutationRejected, kind)
	}

	if errors.Is(err, interfaces.ErrNoTransactOpts) {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMutationRejected, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMutationReverted, err)
	}
	return tx, nil
}

func (m *Manager) await(key actionKey, record *Record, tx *types.Transaction, log *slog.Logger) {
	defer m.wg.Done()

	receipt, err := m.transactor.WaitMined(m.ctx, tx)
	if err != nil {
		err = fmt.Errorf("%w: %w", interfaces.ErrMutationReverted, err)
		m.finish(key, record, StatusFailed, func(r *Record) { r.err = err })
		log.Warn("mutation failed while waiting for inclusion", "err", err)
		return
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		err := fmt.Errorf("%w: transaction %s reverted in block %v", interfaces.ErrMutationReverted, tx.Hash().Hex(), receipt.BlockNumber)
		m.finish(key, record, StatusFailed, func(r *Record) { r.err = err })
		log.Warn("mutation reverted", "tx", tx.Hash().Hex())
		return
	}

	// Invalidate before announcing confirmation so observers re-read fresh state.
	m.invalidator.Invalidate()

	created := createdToken(record.Kind, receipt)
	m.finish(key, record, StatusConfirmed, func(r *Record) { r.createdToken = created })
	log.Info("mutation confirmed", "tx", tx.Hash().Hex(), "block", receipt.BlockNumber)
}

func (m *Manager) finish(key actionKey, record *Record, status Status, update func(r *Record)) {
	if _, ok := record.transition(status, update); !ok {
		return
	}
	m.metrics.ObserveMutation(string(record.Kind), string(status))

	m.mutex.Lock()
	if m.inFlight[key] == record {
		delete(m.inFlight, key)
	}
	m.mutex.Unlock()
}

// NormalizeTokenParams trims name and symbol, collapses inner whitespace runs
// to a single space and upper-cases the symbol. Both must be non-empty afterwards.
func NormalizeTokenParams(name, symbol string) (string, string, error) {
	name = strings.Join(strings.Fields(name), " ")
	symbol = strings.ToUpper(strings.Join(strings.Fields(symbol), " "))

	if name == "" {
		return "", "", fmt.Errorf("%w: token name required", interfaces.ErrMutationRejected)
	}
	if symbol == "" {
		return "", "", fmt.Errorf("%w: token symbol required", interfaces.ErrMutationRejected)
	}
	return name, symbol, nil
}

func createdToken(kind Kind, receipt *types.Receipt) *common.Address {
	if kind != KindCreate {
		return nil
	}
	event := chain.FactoryABI.Events["TokenCreated"]
	for _, l := range receipt.Logs {
		if len(l.Topics) > 1 && l.Topics[0] == event.ID {
			token := common.BytesToAddress(l.Topics[1].Bytes())
			return &token
		}
	}
	return nil
}
