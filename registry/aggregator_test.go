package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/metrics"
)

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000000FA")
	tokenAA     = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	tokenBB     = common.HexToAddress("0x00000000000000000000000000000000000000BB")
	tokenDD     = common.HexToAddress("0x00000000000000000000000000000000000000DD")
	creatorCC   = common.HexToAddress("0x00000000000000000000000000000000000000CC")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isRegistryCall(c interfaces.Call) bool {
	return c.Contract == testFactory && c.Method == chain.MethodGetTokenRecords
}

func success(v any) interfaces.CallResult {
	return interfaces.CallResult{Status: interfaces.CallSuccess, Result: []any{v}}
}

func failure() interfaces.CallResult {
	return interfaces.CallResult{Status: interfaces.CallFailure, Err: errors.New("execution reverted")}
}

func TestAggregator_List_MergesMetadata(t *testing.T) {
	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return([]any{[]chain.FactoryTokenRecord{
		{Token: tokenAA, Creator: creatorCC, CreatedAt: big.NewInt(1700000000)},
	}}, nil)
	reader.On("BatchRead", mock.Anything, mock.MatchedBy(func(calls []interfaces.Call) bool {
		return len(calls) == 3 &&
			calls[0].Method == chain.MethodName &&
			calls[1].Method == chain.MethodSymbol &&
			calls[2].Method == chain.MethodFreemintAmount &&
			calls[0].Contract == tokenAA
	})).Return([]interfaces.CallResult{
		success("Ocean Dollar"),
		success("OCD"),
		success(uint64(10_000_000)),
	}, nil)

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)
	records, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, tokenAA, record.Address)
	assert.Equal(t, creatorCC, record.Creator)
	assert.Equal(t, int64(1700000000000), record.CreatedAt)
	assert.Equal(t, "Ocean Dollar", record.Name)
	assert.Equal(t, "OCD", record.Symbol)
	assert.Equal(t, "10", record.FormattedAllowance(interfaces.DefaultTokenDecimals))
	reader.AssertExpectations(t)
}

func TestAggregator_List_RegistryUnavailable(t *testing.T) {
	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return(nil, errors.New("rpc timeout"))

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)
	records, err := aggregator.List(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
	assert.ErrorContains(t, err, "rpc timeout")
	assert.Nil(t, records)
	reader.AssertNotCalled(t, "BatchRead", mock.Anything, mock.Anything)
}

func TestAggregator_List_UnexpectedRegistryShape(t *testing.T) {
	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return([]any{"garbage"}, nil)

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)
	_, err := aggregator.List(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)
	reader.AssertNotCalled(t, "BatchRead", mock.Anything, mock.Anything)
}

func TestAggregator_List_Empty(t *testing.T) {
	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return([]any{[]chain.FactoryTokenRecord{}}, nil)

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)
	records, err := aggregator.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	reader.AssertNotCalled(t, "BatchRead", mock.Anything, mock.Anything)
}

func TestAggregator_List_FieldFallbacks(t *testing.T) {
	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return([]any{[]chain.FactoryTokenRecord{
		{Token: tokenAA, Creator: creatorCC, CreatedAt: big.NewInt(1)},
		{Token: tokenBB, Creator: creatorCC, CreatedAt: big.NewInt(2)},
		{Token: tokenDD, Creator: creatorCC, CreatedAt: big.NewInt(3)},
	}}, nil)
	reader.On("BatchRead", mock.Anything, mock.Anything).Return([]interfaces.CallResult{
		// AA: symbol fails
		success("Ocean Dollar"), failure(), success(uint64(10_000_000)),
		// BB: everything fails
		failure(), failure(), failure(),
		// DD: wrong shapes succeed but cannot be used
		success(42), {Status: interfaces.CallSuccess}, success("not-a-number"),
	}, nil)

	m := metrics.NewMetrics("test")
	aggregator := NewAggregator(reader, testFactory, discardLogger(), m)
	records, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	// order preserved
	assert.Equal(t, []common.Address{tokenAA, tokenBB, tokenDD}, []common.Address{records[0].Address, records[1].Address, records[2].Address})

	assert.Equal(t, "Ocean Dollar", records[0].Name)
	assert.Equal(t, interfaces.DefaultTokenSymbol, records[0].Symbol)
	assert.Equal(t, "10", records[0].FormattedAllowance(6))

	for _, record := range records[1:] {
		assert.Equal(t, interfaces.DefaultTokenName, record.Name)
		assert.Equal(t, interfaces.DefaultTokenSymbol, record.Symbol)
		assert.Equal(t, "0", record.FormattedAllowance(6))
	}
}

func TestAggregator_List_BatchTransportFailure(t *testing.T) {
	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return([]any{[]chain.FactoryTokenRecord{
		{Token: tokenAA, Creator: creatorCC, CreatedAt: big.NewInt(1700000000)},
	}}, nil)
	reader.On("BatchRead", mock.Anything, mock.Anything).Return(nil, errors.New("multicall failed"))

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)
	records, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tokenAA, records[0].Address)
	assert.Equal(t, interfaces.DefaultTokenMetadata().Name, records[0].Name)
}

func TestAggregator_CacheAndInvalidate(t *testing.T) {
	stub := chain.NewStubChain(testFactory)
	stub.AddToken(chain.StubToken{Address: tokenAA, Creator: creatorCC, CreatedAt: 1700000000, Name: "Ocean Dollar", Symbol: "OCD", FreemintAmount: 10_000_000})

	aggregator := NewAggregator(stub, testFactory, discardLogger(), nil)
	assert.Equal(t, "launchpad/tokens/0x00000000000000000000000000000000000000fa", aggregator.CacheKey())

	first, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// mutating a returned record does not leak into the cache
	first[0].Name = "changed"
	first[0].FreemintAllowance.SetInt64(1)

	second, err := aggregator.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ocean Dollar", second[0].Name)
	assert.Equal(t, "10", second[0].FormattedAllowance(6))

	reads, batchReads, _ := stub.Stats()
	assert.Equal(t, 1, reads)
	assert.Equal(t, 1, batchReads)

	stub.AddToken(chain.StubToken{Address: tokenBB, Creator: creatorCC, CreatedAt: 1700000100, Name: "River Pound", Symbol: "RVP"})
	cached, err := aggregator.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, cached, 1, "no TTL: served from cache until invalidated")

	aggregator.Invalidate()
	fresh, err := aggregator.List(context.Background())
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, tokenBB, fresh[1].Address)

	reads, batchReads, _ = stub.Stats()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 2, batchReads)

	record, found, err := aggregator.Get(context.Background(), tokenBB)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "RVP", record.Symbol)

	_, found, err = aggregator.Get(context.Background(), tokenDD)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAggregator_FailureIsNotCached(t *testing.T) {
	stub := chain.NewStubChain(testFactory)
	stub.AddToken(chain.StubToken{Address: tokenAA, Creator: creatorCC, Name: "Ocean Dollar", Symbol: "OCD"})
	stub.FailRegistry(errors.New("node syncing"))

	aggregator := NewAggregator(stub, testFactory, discardLogger(), nil)
	_, err := aggregator.List(context.Background())
	require.ErrorIs(t, err, interfaces.ErrRegistryUnavailable)

	stub.FailRegistry(nil)
	records, err := aggregator.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAggregator_InvalidateDuringAggregation(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Run(func(mock.Arguments) {
		started <- struct{}{}
		<-release
	}).Return([]any{[]chain.FactoryTokenRecord{}}, nil).Once()
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Return([]any{[]chain.FactoryTokenRecord{}}, nil).Once()

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)

	done := make(chan error)
	go func() {
		_, err := aggregator.List(context.Background())
		done <- err
	}()

	<-started
	aggregator.Invalidate()
	close(release)
	require.NoError(t, <-done)

	// the stale result was not cached
	_, err := aggregator.List(context.Background())
	require.NoError(t, err)
	reader.AssertNumberOfCalls(t, "Read", 2)
}

func TestAggregator_CancelledCallerDoesNotAbortSharedRead(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	flightErr := make(chan error, 1)

	reader := new(chain.MockChainReader)
	reader.On("Read", mock.Anything, mock.MatchedBy(isRegistryCall)).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		close(started)
		<-release
		flightErr <- ctx.Err()
	}).Return([]any{[]chain.FactoryTokenRecord{
		{Token: tokenAA, Creator: creatorCC, CreatedAt: big.NewInt(1700000000)},
	}}, nil).Once()
	reader.On("BatchRead", mock.Anything, mock.Anything).Return([]interfaces.CallResult{
		success("Ocean Dollar"), success("OCD"), success(uint64(10_000_000)),
	}, nil).Once()

	aggregator := NewAggregator(reader, testFactory, discardLogger(), nil)

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan error, 1)
	go func() {
		_, err := aggregator.List(ctxA)
		doneA <- err
	}()
	<-started

	type listResult struct {
		records []interfaces.TokenRecord
		err     error
	}
	doneB := make(chan listResult, 1)
	go func() {
		records, err := aggregator.List(context.Background())
		doneB <- listResult{records, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-doneA, context.Canceled)

	close(release)
	b := <-doneB
	require.NoError(t, b.err)
	require.Len(t, b.records, 1)
	assert.Equal(t, "Ocean Dollar", b.records[0].Name)
	assert.NoError(t, <-flightErr, "shared read saw the first caller's cancellation")

	// the completed aggregation was cached for later callers
	records, err := aggregator.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	reader.AssertNumberOfCalls(t, "Read", 1)
	reader.AssertNumberOfCalls(t, "BatchRead", 1)
}
