package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/metrics"
)

const cacheKeyPrefix = "launchpad/tokens/"

// Metadata field names, used in logs and metric labels.
const (
	FieldName     = "name"
	FieldSymbol   = "symbol"
	FieldFreemint = "freemintAmount"
)

// metadataCallsPerToken is the number of batched reads issued per token identity.
const metadataCallsPerToken = 3

// Aggregator produces the merged token list: the identity list from the
// factory followed by one batched read of every token's metadata. Results are
// cached under a stable key until Invalidate is called.
type Aggregator struct {
	reader  interfaces.ChainReader
	factory common.Address
	log     *slog.Logger
	metrics *metrics.Metrics

	mutex      sync.Mutex
	cache      map[string][]interfaces.TokenRecord
	generation uint64
	group      singleflight.Group
}

// NewAggregator creates an aggregator reading the factory at the given address.
//
// Parameters:
//   - reader: Chain access used for the identity list and the metadata batch
//   - factory: Address of the token factory contract
//   - log: Structured logger
//   - m: Metrics collectors, may be nil
func NewAggregator(reader interfaces.ChainReader, factory common.Address, log *slog.Logger, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		reader:  reader,
		factory: factory,
		log:     log,
		metrics: m,
		cache:   make(map[string][]interfaces.TokenRecord),
	}
}

// CacheKey returns the key under which the token list is cached.
func (a *Aggregator) CacheKey() string {
	return cacheKeyPrefix + strings.ToLower(a.factory.Hex())
}

// List returns every token known to the factory, in factory order, with
// metadata filled in or replaced by defaults. It fails with
// ErrRegistryUnavailable only if the identity list itself cannot be read.
//
// Concurrent calls share one aggregation, which runs detached from any single
// caller: a caller whose ctx is done returns ctx.Err() while the reads run to
// completion for the others. A result computed before an Invalidate is
// returned to its callers but not cached.
func (a *Aggregator) List(ctx context.Context) ([]interfaces.TokenRecord, error) {
	key := a.CacheKey()

	a.mutex.Lock()
	if records, ok := a.cache[key]; ok {
		a.mutex.Unlock()
		a.metrics.ObserveAggregation("cached")
		return cloneRecords(records), nil
	}
	generation := a.generation
	a.mutex.Unlock()

	flightCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(fmt.Sprintf("%s#%d", key, generation), func() (any, error) {
		records, err := a.aggregate(flightCtx)
		if err != nil {
			return nil, err
		}

		a.mutex.Lock()
		if a.generation == generation {
			a.cache[key] = records
		}
		a.mutex.Unlock()
		return records, nil
	})

	select {
	case <-ctx.Done():
		a.log.Debug("token list caller gone, aggregation continues", "err", ctx.Err())
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			a.metrics.ObserveAggregation("failed")
			return nil, res.Err
		}
		a.metrics.ObserveAggregation("fetched")
		return cloneRecords(res.Val.([]interfaces.TokenRecord)), nil
	}
}

// Get returns the record for one token address from the token list.
func (a *Aggregator) Get(ctx context.Context, token common.Address) (*interfaces.TokenRecord, bool, error) {
	records, err := a.List(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range records {
		if records[i].Address == token {
			return &records[i], true, nil
		}
	}
	return nil, false, nil
}

// Invalidate drops the cached token list so the next List re-aggregates.
func (a *Aggregator) Invalidate() {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	delete(a.cache, a.CacheKey())
	a.generation++
	a.log.Debug("token list invalidated", "key", a.CacheKey())
}

func (a *Aggregator) aggregate(ctx context.Context) ([]interfaces.TokenRecord, error) {
	values, err := a.reader.Read(ctx, interfaces.Call{
		Contract: a.factory,
		ABI:      chain.FactoryABI,
		Method:   chain.MethodGetTokenRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRegistryUnavailable, err)
	}

	identities, err := decodeIdentities(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrRegistryUnavailable, err)
	}

	if len(identities) == 0 {
		return []interfaces.TokenRecord{}, nil
	}

	calls := make([]interfaces.Call, 0, len(identities)*metadataCallsPerToken)
	for _, identity := range identities {
		calls = append(calls,
			interfaces.Call{Contract: identity.Address, ABI: chain.TokenABI, Method: chain.MethodName},
			interfaces.Call{Contract: identity.Address, ABI: chain.TokenABI, Method: chain.MethodSymbol},
			interfaces.Call{Contract: identity.Address, ABI: chain.TokenABI, Method: chain.MethodFreemintAmount},
		)
	}

	results, err := a.reader.BatchRead(ctx, calls)
	if err != nil || len(results) != len(calls) {
		// Treated as every field failing: identities are still displayable.
		a.log.Warn("metadata batch failed, using defaults", "tokens", len(identities), "err", err, "results", len(results))
		results = make([]interfaces.CallResult, len(calls))
		for i := range results {
			results[i] = interfaces.CallResult{Status: interfaces.CallFailure, Err: err}
		}
	}

	records := make([]interfaces.TokenRecord, len(identities))
	for i, identity := range identities {
		fields := results[i*metadataCallsPerToken : (i+1)*metadataCallsPerToken]
		records[i] = interfaces.TokenRecord{
			TokenIdentity: identity,
			TokenMetadata: a.mergeMetadata(identity.Address, fields),
		}
	}

	a.log.Debug("token list aggregated", "tokens", len(records), "factory", a.factory.Hex())
	return records, nil
}

func (a *Aggregator) mergeMetadata(token common.Address, fields []interfaces.CallResult) interfaces.TokenMetadata {
	metadata := interfaces.DefaultTokenMetadata()

	if name, ok := a.decodeField(token, FieldName, fields[0], decodeString); ok {
		metadata.Name = name.(string)
	}
	if symbol, ok := a.decodeField(token, FieldSymbol, fields[1], decodeString); ok {
		metadata.Symbol = symbol.(string)
	}
	if amount, ok := a.decodeField(token, FieldFreemint, fields[2], decodeAmount); ok {
		metadata.FreemintAllowance = amount.(*big.Int)
	}
	return metadata
}

func (a *Aggregator) decodeField(token common.Address, field string, result interfaces.CallResult, decode func(any) (any, bool)) (any, bool) {
	switch result.Status {
	case interfaces.CallSuccess:
		if len(result.Result) == 1 {
			if v, ok := decode(result.Result[0]); ok {
				return v, true
			}
		}
		a.log.Debug("partial metadata failure", "token", token.Hex(), "field", field, "err", "unexpected result shape")
	case interfaces.CallFailure:
		a.log.Debug("partial metadata failure", "token", token.Hex(), "field", field, "err", result.Err)
	default:
		a.log.Debug("partial metadata failure", "token", token.Hex(), "field", field, "err", "unknown call status "+result.Status.String())
	}

	a.metrics.ObserveMetadataFallback(field)
	return nil, false
}

func decodeString(v any) (any, bool) {
	s, ok := v.(string)
	return s, ok
}

func decodeAmount(v any) (any, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil || n.Sign() < 0 {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case string:
		amount, ok := interfaces.ParseAmount(n)
		if !ok || amount.Sign() < 0 {
			return nil, false
		}
		return amount, true
	default:
		return nil, false
	}
}

func decodeIdentities(values []any) (identities []interfaces.TokenIdentity, err error) {
	if len(values) != 1 {
		return nil, fmt.Errorf("expected one output, got %d", len(values))
	}

	// abi.ConvertType panics when the shapes are incompatible.
	defer func() {
		if r := recover(); r != nil {
			identities, err = nil, fmt.Errorf("unexpected token record shape: %v", r)
		}
	}()
	records := *abi.ConvertType(values[0], new([]chain.FactoryTokenRecord)).(*[]chain.FactoryTokenRecord)

	identities = make([]interfaces.TokenIdentity, len(records))
	for i, record := range records {
		identities[i] = interfaces.TokenIdentity{
			Address:   record.Token,
			Creator:   record.Creator,
			CreatedAt: secondsToMillis(record.CreatedAt),
		}
	}
	return identities, nil
}

func secondsToMillis(seconds *big.Int) int64 {
	if seconds == nil || !seconds.IsInt64() {
		return 0
	}
	return seconds.Int64() * 1000
}

func cloneRecords(records []interfaces.TokenRecord) []interfaces.TokenRecord {
	out := make([]interfaces.TokenRecord, len(records))
	for i, record := range records {
		out[i] = record
		if record.FreemintAllowance != nil {
			out[i].FreemintAllowance = new(big.Int).Set(record.FreemintAllowance)
		}
	}
	return out
}
