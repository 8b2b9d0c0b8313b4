package mutation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/registry"
)

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000000FA")
	testHolder  = common.HexToAddress("0x00000000000000000000000000000000000000CC")
	tokenAA     = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	tokenBB     = common.HexToAddress("0x00000000000000000000000000000000000000BB")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingInvalidator struct {
	calls atomic.Int32
}

func (c *countingInvalidator) Invalidate() {
	c.calls.Inc()
}

func waitTerminal(t *testing.T, record *Record) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	event, err := record.Wait(ctx)
	require.NoError(t, err)
	return event
}

func setupStub() *chain.StubChain {
	stub := chain.NewStubChain(testFactory)
	stub.AddToken(chain.StubToken{Address: tokenAA, Creator: testHolder, Name: "Ocean Dollar", Symbol: "OCD", FreemintAmount: 10_000_000})
	stub.AddToken(chain.StubToken{Address: tokenBB, Creator: testHolder, Name: "River Pound", Symbol: "RVP", FreemintAmount: 5_000_000})
	stub.SetTransactOpts(testHolder)
	return stub
}

func TestManager_CreateTokenConfirmsAndInvalidates(t *testing.T) {
	stub := chain.NewStubChain(testFactory)
	stub.SetTransactOpts(testHolder)
	aggregator := registry.NewAggregator(stub, testFactory, discardLogger(), nil)

	before, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, before)

	manager := NewManager(stub, aggregator, discardLogger(), nil)
	defer manager.Close()

	record, err := manager.CreateToken(context.Background(), "  Ocean   Dollar ", " ocd ")
	require.NoError(t, err)
	require.NotNil(t, record.TxHash())

	event := waitTerminal(t, record)
	assert.Equal(t, StatusConfirmed, event.Status)
	assert.Equal(t, testFactory, event.Target)
	require.NotNil(t, event.CreatedToken)

	after, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, *event.CreatedToken, after[0].Address)
	assert.Equal(t, "Ocean Dollar", after[0].Name)
	assert.Equal(t, "OCD", after[0].Symbol)
	assert.True(t, after[0].IsCreator(testHolder))
}

func TestManager_SubscribeReceivesTransitions(t *testing.T) {
	stub := setupStub()
	stub.PauseMining()
	invalidator := &countingInvalidator{}
	manager := NewManager(stub, invalidator, discardLogger(), nil)
	defer manager.Close()

	record, err := manager.Freemint(context.Background(), tokenAA)
	require.NoError(t, err)

	events, unsubscribe := record.Subscribe()
	defer unsubscribe()

	first := <-events
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, record.ID, first.ID)
	assert.NotNil(t, first.TxHash)

	stub.ResumeMining()
	last := <-events
	assert.Equal(t, StatusConfirmed, last.Status)

	_, open := <-events
	assert.False(t, open, "channel closed after terminal event")
	assert.Equal(t, int32(1), invalidator.calls.Load())

	// subscribing to a terminal record yields the final state only
	events, _ = record.Subscribe()
	final := <-events
	assert.Equal(t, StatusConfirmed, final.Status)
	_, open = <-events
	assert.False(t, open)
}

func TestManager_RejectsDuplicateInFlight(t *testing.T) {
	stub := setupStub()
	stub.PauseMining()
	manager := NewManager(stub, &countingInvalidator{}, discardLogger(), nil)
	defer manager.Close()

	first, err := manager.Freemint(context.Background(), tokenAA)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status())

	_, err = manager.Freemint(context.Background(), tokenAA)
	assert.ErrorIs(t, err, interfaces.ErrMutationInFlight)
	assert.ErrorIs(t, err, interfaces.ErrMutationRejected)

	_, _, submitted := stub.Stats()
	assert.Equal(t, 1, submitted, "duplicate never reaches the chain")

	// other targets and kinds proceed independently
	other, err := manager.Freemint(context.Background(), tokenBB)
	require.NoError(t, err)
	create, err := manager.CreateToken(context.Background(), "Lake Yen", "LKY")
	require.NoError(t, err)

	_, _, submitted = stub.Stats()
	assert.Equal(t, 3, submitted)

	stub.ResumeMining()
	for _, record := range []*Record{first, other, create} {
		assert.Equal(t, StatusConfirmed, waitTerminal(t, record).Status)
	}

	// once terminal the action can be repeated
	again, err := manager.Freemint(context.Background(), tokenAA)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, waitTerminal(t, again).Status)

	latest, ok := manager.Latest(KindFreemint, tokenAA)
	require.True(t, ok)
	assert.Equal(t, again.ID, latest.ID)

	found, ok := manager.Get(again.ID)
	require.True(t, ok)
	assert.Same(t, again, found)
}

func TestManager_SupersededRecordIsDropped(t *testing.T) {
	stub := setupStub()
	manager := NewManager(stub, &countingInvalidator{}, discardLogger(), nil)
	defer manager.Close()

	history := make([]*Record, 0, 20)
	for i := 0; i < 20; i++ {
		record, err := manager.Freemint(context.Background(), tokenAA)
		require.NoError(t, err)
		require.Equal(t, StatusConfirmed, waitTerminal(t, record).Status)
		history = append(history, record)
	}
	other, err := manager.Freemint(context.Background(), tokenBB)
	require.NoError(t, err)
	waitTerminal(t, other)

	for _, record := range history[:len(history)-1] {
		_, ok := manager.Get(record.ID)
		assert.False(t, ok, "superseded record %s still resolves", record.ID)
	}
	last, ok := manager.Get(history[len(history)-1].ID)
	require.True(t, ok)
	assert.Same(t, history[len(history)-1], last)

	// records of other targets are kept
	_, ok = manager.Get(other.ID)
	assert.True(t, ok)

	manager.mutex.Lock()
	assert.Len(t, manager.records, 2)
	manager.mutex.Unlock()
}

func TestManager_SubmitAfterCloseRejects(t *testing.T) {
	stub := setupStub()
	manager := NewManager(stub, &countingInvalidator{}, discardLogger(), nil)
	manager.Close()

	record, err := manager.Freemint(context.Background(), tokenAA)
	assert.Nil(t, record)
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, err, interfaces.ErrMutationRejected)

	_, _, submitted := stub.Stats()
	assert.Equal(t, 0, submitted)
}

func TestManager_RevertFailsWithoutInvalidation(t *testing.T) {
	stub := setupStub()
	stub.RevertNext(errors.New("already minted"))
	invalidator := &countingInvalidator{}
	manager := NewManager(stub, invalidator, discardLogger(), nil)
	defer manager.Close()

	record, err := manager.Freemint(context.Background(), tokenAA)
	require.NoError(t, err)

	event := waitTerminal(t, record)
	assert.Equal(t, StatusFailed, event.Status)
	assert.ErrorIs(t, record.Err(), interfaces.ErrMutationReverted)
	assert.Contains(t, event.Error, "reverted")
	assert.Equal(t, int32(0), invalidator.calls.Load())
}

func TestManager_ValidationRejects(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		target common.Address
		params Params
	}{
		{"blank name", KindCreate, testFactory, Params{Name: "   ", Symbol: "OCD"}},
		{"blank symbol", KindCreate, testFactory, Params{Name: "Ocean Dollar", Symbol: "\t"}},
		{"freemint without token", KindFreemint, common.Address{}, Params{}},
		{"unknown kind", Kind("burn"), tokenAA, Params{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := setupStub()
			manager := NewManager(stub, &countingInvalidator{}, discardLogger(), nil)
			defer manager.Close()

			record, err := manager.Submit(context.Background(), tt.kind, tt.target, tt.params)
			assert.ErrorIs(t, err, interfaces.ErrMutationRejected)
			require.NotNil(t, record)
			assert.Equal(t, StatusFailed, record.Status())

			_, _, submitted := stub.Stats()
			assert.Equal(t, 0, submitted)
		})
	}
}

func TestManager_NoSignerRejects(t *testing.T) {
	stub := chain.NewStubChain(testFactory)
	manager := NewManager(stub, &countingInvalidator{}, discardLogger(), nil)
	defer manager.Close()

	record, err := manager.CreateToken(context.Background(), "Ocean Dollar", "OCD")
	assert.ErrorIs(t, err, interfaces.ErrMutationRejected)
	assert.Equal(t, StatusFailed, record.Status())
}

func TestManager_SubmissionErrorIsReverted(t *testing.T) {
	transactor := new(chain.MockTokenTransactor)
	transactor.On("CanTransact").Return(true)
	transactor.On("Freemint", mock.Anything, tokenAA).Return(nil, errors.New("execution reverted: freemint already claimed"))

	manager := NewManager(transactor, &countingInvalidator{}, discardLogger(), nil)
	defer manager.Close()

	record, err := manager.Freemint(context.Background(), tokenAA)
	assert.ErrorIs(t, err, interfaces.ErrMutationReverted)
	assert.ErrorContains(t, err, "freemint already claimed")
	assert.Equal(t, StatusFailed, record.Status())
	transactor.AssertNotCalled(t, "WaitMined", mock.Anything, mock.Anything)
}

func TestManager_ReceiptWaitError(t *testing.T) {
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &tokenAA})
	transactor := new(chain.MockTokenTransactor)
	transactor.On("CanTransact").Return(true)
	transactor.On("Freemint", mock.Anything, tokenAA).Return(tx, nil)
	transactor.On("WaitMined", mock.Anything, tx).Return(nil, errors.New("connection reset"))

	invalidator := &countingInvalidator{}
	manager := NewManager(transactor, invalidator, discardLogger(), nil)
	defer manager.Close()

	record, err := manager.Freemint(context.Background(), tokenAA)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), *record.TxHash())

	event := waitTerminal(t, record)
	assert.Equal(t, StatusFailed, event.Status)
	assert.ErrorIs(t, record.Err(), interfaces.ErrMutationReverted)
	assert.Contains(t, event.Error, "connection reset")
	assert.Equal(t, int32(0), invalidator.calls.Load())
}

func TestManager_CloseFailsPending(t *testing.T) {
	stub := setupStub()
	stub.PauseMining()
	manager := NewManager(stub, &countingInvalidator{}, discardLogger(), nil)

	record, err := manager.Freemint(context.Background(), tokenAA)
	require.NoError(t, err)

	manager.Close()
	assert.Equal(t, StatusFailed, record.Status())
	assert.ErrorIs(t, record.Err(), context.Canceled)
}

func TestNormalizeTokenParams(t *testing.T) {
	tests := []struct {
		name, symbol           string
		expectName, expectSymb string
	}{
		{"  Ocean \n Dollar  ", " ocd ", "Ocean Dollar", "OCD"},
		{"Ocean Dollar", " o  c d ", "Ocean Dollar", "O C D"},
		{"Lake\tYen", "lky\n", "Lake Yen", "LKY"},
	}
	for _, tt := range tests {
		name, symbol, err := NormalizeTokenParams(tt.name, tt.symbol)
		require.NoError(t, err)
		assert.Equal(t, tt.expectName, name)
		assert.Equal(t, tt.expectSymb, symbol)
	}

	_, _, err := NormalizeTokenParams("", "OCD")
	assert.ErrorIs(t, err, interfaces.ErrMutationRejected)
}
