package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/confidential-launchpad/interfaces"
)

var (
	errStubReadFailed  = errors.New("stub: read failed")
	errStubUnknownCall = errors.New("stub: unknown call")
)

// StubToken is the in-memory state of one confidential token.
type StubToken struct {
	Address        common.Address
	Creator        common.Address
	CreatedAt      uint64 // unix seconds
	Name           string
	Symbol         string
	FreemintAmount uint64

	balances map[common.Address]interfaces.EncryptedHandle
}

// StubChain is an in-memory double of the launchpad contracts implementing
// both ChainReader and TokenTransactor. Encrypted balances are handles whose
// plaintexts are kept in memory and can be looked up with Plaintext, so a
// stub disclosure service can resolve them.
//
// Transactions take effect when WaitMined is called, mimicking inclusion.
type StubChain struct {
	mutex sync.Mutex

	factory common.Address
	from    common.Address
	tokens  []*StubToken

	plaintexts map[interfaces.EncryptedHandle]*big.Int
	pending    map[common.Hash]func() []*types.Log
	failing    map[string]error
	registry   error
	revert     error
	gate       chan struct{}

	allowTransacting bool
	nonce            uint64
	reads            int
	batchReads       int
	submitted        int
}

var (
	_ interfaces.ChainReader     = (*StubChain)(nil)
	_ interfaces.TokenTransactor = (*StubChain)(nil)
)

// NewStubChain creates an empty stub with the given factory address.
// The stub starts in a read-only state, call SetTransactOpts to enable writes.
func NewStubChain(factory common.Address) *StubChain {
	return &StubChain{
		factory:    factory,
		plaintexts: make(map[interfaces.EncryptedHandle]*big.Int),
		pending:    make(map[common.Hash]func() []*types.Log),
		failing:    make(map[string]error),
	}
}

// SetTransactOpts enables transactions sent from the given address.
func (s *StubChain) SetTransactOpts(from common.Address) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.from = from
	s.allowTransacting = true
}

// AddToken registers a token directly, bypassing the factory.
func (s *StubChain) AddToken(token StubToken) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t := token
	t.balances = make(map[common.Address]interfaces.EncryptedHandle)
	s.tokens = append(s.tokens, &t)
}

// SetBalance assigns holder a fresh handle encrypting amount.
func (s *StubChain) SetBalance(token, holder common.Address, amount *big.Int) (interfaces.EncryptedHandle, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	t := s.token(token)
	if t == nil {
		return interfaces.EncryptedHandle{}, bind.ErrNoCode
	}
	return s.assignBalance(t, holder, amount), nil
}

// SetHandle assigns holder an arbitrary handle without a known plaintext.
func (s *StubChain) SetHandle(token, holder common.Address, handle interfaces.EncryptedHandle) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if t := s.token(token); t != nil {
		t.balances[holder] = handle
	}
}

// Plaintext returns the decimal plaintext behind a handle issued by the stub.
func (s *StubChain) Plaintext(handle interfaces.EncryptedHandle) (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	v, ok := s.plaintexts[handle]
	if !ok {
		return "", false
	}
	return v.String(), true
}

// FailRead makes every read of method on contract fail with err.
func (s *StubChain) FailRead(contract common.Address, method string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err == nil {
		err = errStubReadFailed
	}
	s.failing[failKey(contract, method)] = err
}

// FailRegistry makes getTokenRecords fail with err, or succeed again if err is nil.
func (s *StubChain) FailRegistry(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.registry = err
}

// RevertNext makes the next mined transaction revert.
func (s *StubChain) RevertNext(reason error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.revert = reason
}

// PauseMining makes WaitMined block until ResumeMining is called.
func (s *StubChain) PauseMining() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.gate == nil {
		s.gate = make(chan struct{})
	}
}

// ResumeMining releases transactions blocked in WaitMined.
func (s *StubChain) ResumeMining() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Stats returns the number of single reads, batched reads and submitted transactions.
func (s *StubChain) Stats() (reads, batchReads, submitted int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.reads, s.batchReads, s.submitted
}

// Read implements interfaces.ChainReader.
func (s *StubChain) Read(_ context.Context, call interfaces.Call) ([]any, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.reads++
	return s.read(call)
}

// BatchRead implements interfaces.ChainReader.
func (s *StubChain) BatchRead(_ context.Context, calls []interfaces.Call) ([]interfaces.CallResult, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.batchReads++

	results := make([]interfaces.CallResult, len(calls))
	for i, call := range calls {
		values, err := s.read(call)
		if err != nil {
			results[i] = interfaces.CallResult{Status: interfaces.CallFailure, Err: err}
			continue
		}
		results[i] = interfaces.CallResult{Status: interfaces.CallSuccess, Result: values}
	}
	return results, nil
}

// Factory implements interfaces.TokenTransactor.
func (s *StubChain) Factory() common.Address {
	return s.factory
}

// CanTransact implements interfaces.TokenTransactor.
func (s *StubChain) CanTransact() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.allowTransacting
}

// CreateConfidentialToken queues the creation of a token owned by the sender.
func (s *StubChain) CreateConfidentialToken(_ context.Context, name, symbol string) (*types.Transaction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.allowTransacting {
		return nil, interfaces.ErrNoTransactOpts
	}

	tx := s.newTx(s.factory)
	creator := s.from
	address := crypto.CreateAddress(s.factory, tx.Nonce())
	s.pending[tx.Hash()] = func() []*types.Log {
		s.tokens = append(s.tokens, &StubToken{
			Address:        address,
			Creator:        creator,
			CreatedAt:      uint64(time.Now().Unix()),
			Name:           name,
			Symbol:         symbol,
			FreemintAmount: 10_000_000,
			balances:       make(map[common.Address]interfaces.EncryptedHandle),
		})
		return []*types.Log{{
			Address: s.factory,
			Topics: []common.Hash{
				FactoryABI.Events["TokenCreated"].ID,
				common.BytesToHash(address.Bytes()),
				common.BytesToHash(creator.Bytes()),
			},
			TxHash: tx.Hash(),
		}}
	}
	return tx, nil
}

// Freemint queues a mint of the token's freemint amount to the sender.
func (s *StubChain) Freemint(_ context.Context, token common.Address) (*types.Transaction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if !s.allowTransacting {
		return nil, interfaces.ErrNoTransactOpts
	}
	if s.token(token) == nil {
		return nil, bind.ErrNoCode
	}

	tx := s.newTx(token)
	holder := s.from
	s.pending[tx.Hash()] = func() []*types.Log {
		t := s.token(token)
		balance := new(big.Int)
		if current, ok := t.balances[holder]; ok {
			if v, ok := s.plaintexts[current]; ok {
				balance.Set(v)
			}
		}
		balance.Add(balance, new(big.Int).SetUint64(t.FreemintAmount))
		s.assignBalance(t, holder, balance)
		return nil
	}
	return tx, nil
}

// WaitMined applies the transaction's effect and returns its receipt.
func (s *StubChain) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	s.mutex.Lock()
	gate := s.gate
	s.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	effect, ok := s.pending[tx.Hash()]
	if !ok {
		return nil, fmt.Errorf("stub: unknown transaction %s", tx.Hash().Hex())
	}
	delete(s.pending, tx.Hash())

	receipt := &types.Receipt{TxHash: tx.Hash(), Status: types.ReceiptStatusSuccessful, BlockNumber: new(big.Int).SetUint64(tx.Nonce())}
	if s.revert != nil {
		s.revert = nil
		receipt.Status = types.ReceiptStatusFailed
		return receipt, nil
	}

	receipt.Logs = effect()
	return receipt, nil
}

func (s *StubChain) read(call interfaces.Call) ([]any, error) {
	if err, ok := s.failing[failKey(call.Contract, call.Method)]; ok {
		return nil, err
	}

	if call.Contract == s.factory && call.Method == MethodGetTokenRecords {
		if s.registry != nil {
			return nil, s.registry
		}
		records := make([]FactoryTokenRecord, 0, len(s.tokens))
		for _, t := range s.tokens {
			records = append(records, FactoryTokenRecord{
				Token:     t.Address,
				Creator:   t.Creator,
				CreatedAt: new(big.Int).SetUint64(t.CreatedAt),
			})
		}
		return []any{records}, nil
	}

	t := s.token(call.Contract)
	if t == nil {
		return nil, bind.ErrNoCode
	}

	switch call.Method {
	case MethodName:
		return []any{t.Name}, nil
	case MethodSymbol:
		return []any{t.Symbol}, nil
	case MethodFreemintAmount:
		return []any{t.FreemintAmount}, nil
	case MethodConfidentialBalanceOf:
		if len(call.Args) != 1 {
			return nil, fmt.Errorf("%w: %s expects one argument", errStubUnknownCall, call.Method)
		}
		holder, ok := call.Args[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects an address", errStubUnknownCall, call.Method)
		}
		return []any{[32]byte(t.balances[holder])}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errStubUnknownCall, call.Method)
	}
}

func (s *StubChain) token(address common.Address) *StubToken {
	for _, t := range s.tokens {
		if t.Address == address {
			return t
		}
	}
	return nil
}

func (s *StubChain) assignBalance(t *StubToken, holder common.Address, amount *big.Int) interfaces.EncryptedHandle {
	s.nonce++
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], s.nonce)
	handle := interfaces.EncryptedHandle(crypto.Keccak256Hash(t.Address.Bytes(), holder.Bytes(), seq[:]))
	t.balances[holder] = handle
	s.plaintexts[handle] = new(big.Int).Set(amount)
	return handle
}

func (s *StubChain) newTx(to common.Address) *types.Transaction {
	s.nonce++
	s.submitted++
	return types.NewTx(&types.LegacyTx{
		Nonce:    s.nonce,
		To:       &to,
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Value:    new(big.Int),
	})
}

func failKey(contract common.Address, method string) string {
	return contract.Hex() + "/" + method
}
