package disclosure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/confidential-launchpad/chain"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/metrics"
)

// DefaultDurationDays is the validity of an authorization.
const DefaultDurationDays = 7

type State string

const (
	StateIdle                State = "idle"
	StateHandleFetched       State = "handle_fetched"
	StateShortCircuitZero    State = "short_circuit_zero"
	StateKeypairReady        State = "keypair_ready"
	StateAuthorizationBuilt  State = "authorization_built"
	StateSigned              State = "signed"
	StateDisclosureRequested State = "disclosure_requested"
	StateResolved            State = "resolved"
	StateFailed              State = "failed"
)

// IsTerminal reports whether no further transition can leave s.
func (s State) IsTerminal() bool {
	return s == StateShortCircuitZero || s == StateResolved || s == StateFailed
}

// Transition is one state change of a session. Err is set when To is StateFailed.
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}

// Observer receives every transition of a session, synchronously and in order.
type Observer func(Transition)

// Config configures a Coordinator.
type Config struct {
	// DurationDays is the authorization validity. Zero means DefaultDurationDays.
	DurationDays int

	// Decimals is the token precision used to format amounts. Zero means
	// interfaces.DefaultTokenDecimals.
	Decimals int

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() *Config {
	return &Config{
		DurationDays: DefaultDurationDays,
		Decimals:     interfaces.DefaultTokenDecimals,
		Now:          time.Now,
	}
}

// Request identifies whose balance of which token to disclose.
type Request struct {
	Token common.Address

	// Holder is the identity whose balance is read. The zero address means no holder.
	Holder common.Address

	// Signer authorizes the disclosure. Nil is treated as a declined signature.
	Signer interfaces.AuthorizationSigner

	// Observer is optional.
	Observer Observer
}

// Result is the outcome of a session that reached a non-failed terminal state.
type Result struct {
	Token     common.Address             `json:"token"`
	Holder    common.Address             `json:"holder"`
	State     State                      `json:"state"`
	Handle    interfaces.EncryptedHandle `json:"handle"`
	Amount    *big.Int                   `json:"amount"`
	Formatted string                     `json:"formatted"`
}

// Coordinator runs disclosure sessions against a chain reader and a disclosure service.
type Coordinator struct {
	reader  interfaces.ChainReader
	service interfaces.DisclosureService
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewCoordinator creates a coordinator. A nil cfg uses DefaultConfig.
//
// Parameters:
//   - reader: Chain access used to read the encrypted balance handle
//   - service: Disclosure service resolving handles
//   - cfg: Validity window, precision and clock
//   - log: Structured logger
//   - m: Metrics collectors, may be nil
func NewCoordinator(reader interfaces.ChainReader, service interfaces.DisclosureService, cfg *Config, log *slog.Logger, m *metrics.Metrics) *Coordinator {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.Decimals > 0 {
			c.Decimals = cfg.Decimals
		}
		if cfg.DurationDays > 0 {
			c.DurationDays = cfg.DurationDays
		}
		if cfg.Now != nil {
			c.Now = cfg.Now
		}
	}

	return &Coordinator{
		reader:  reader,
		service: service,
		cfg:     *c,
		log:     log,
		metrics: m,
	}
}

// Disclose runs one session. On failure the returned error wraps one of
// ErrNotAuthenticated, ErrChainRead, ErrDisclosureServiceUnavailable,
// ErrSignatureDeclined or ErrDisclosureRequestFailed.
func (c *Coordinator) Disclose(ctx context.Context, req Request) (*Result, error) {
	s := &session{
		state:    StateIdle,
		observer: req.Observer,
		now:      c.cfg.Now,
		started:  c.cfg.Now(),
		log:      c.log.With("token", req.Token.Hex(), "holder", req.Holder.Hex()),
	}

	result, err := c.run(ctx, s, req)
	c.metrics.ObserveDisclosure(string(s.state), s.now().Sub(s.started))
	return result, err
}

func (c *Coordinator) run(ctx context.Context, s *session, req Request) (*Result, error) {
	if req.Holder == (common.Address{}) {
		return nil, s.fail(interfaces.ErrNotAuthenticated)
	}

	values, err := c.reader.Read(ctx, interfaces.Call{
		Contract: req.Token,
		ABI:      chain.TokenABI,
		Method:   chain.MethodConfidentialBalanceOf,
		Args:     []any{req.Holder},
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", interfaces.ErrChainRead, err))
	}
	handle, err := decodeHandle(values)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", interfaces.ErrChainRead, err))
	}
	s.transition(StateHandleFetched)

	if handle.IsEmpty() {
		s.transition(StateShortCircuitZero)
		return c.result(req, StateShortCircuitZero, handle, new(big.Int)), nil
	}

	keypair, err := c.service.GenerateKeypair()
	if err != nil {
		return nil, s.fail(wrapAs(interfaces.ErrDisclosureServiceUnavailable, err))
	}
	s.transition(StateKeypairReady)

	startTimestamp := strconv.FormatInt(s.now().Unix(), 10)
	durationDays := strconv.Itoa(c.cfg.DurationDays)
	payload, err := c.service.CreateAuthorization(keypair.PublicKey, []common.Address{req.Token}, startTimestamp, durationDays)
	if err != nil {
		return nil, s.fail(wrapAs(interfaces.ErrDisclosureServiceUnavailable, err))
	}
	s.transition(StateAuthorizationBuilt)

	if req.Signer == nil {
		return nil, s.fail(fmt.Errorf("%w: no signer available", interfaces.ErrSignatureDeclined))
	}
	if req.Signer.Address() != req.Holder {
		return nil, s.fail(fmt.Errorf("%w: signer %s does not control holder", interfaces.ErrSignatureDeclined, req.Signer.Address().Hex()))
	}
	signature, err := req.Signer.SignTypedData(ctx, payload.TypedData)
	if err != nil {
		return nil, s.fail(wrapAs(interfaces.ErrSignatureDeclined, err))
	}
	s.transition(StateSigned)

	s.transition(StateDisclosureRequested)
	disclosed, err := c.service.RequestDisclosure(ctx, &interfaces.DisclosureRequest{
		Handles:           []interfaces.HandleContractPair{{Handle: handle, ContractAddress: req.Token}},
		PrivateKey:        keypair.PrivateKey,
		PublicKey:         keypair.PublicKey,
		Signature:         strings.TrimPrefix(signature, "0x"),
		ContractAddresses: payload.ContractAddresses,
		HolderAddress:     req.Holder,
		StartTimestamp:    payload.StartTimestamp,
		DurationDays:      payload.DurationDays,
	})
	if err != nil {
		return nil, s.fail(wrapAs(interfaces.ErrDisclosureRequestFailed, err))
	}

	amount := new(big.Int)
	if raw, ok := disclosed[handle]; ok {
		parsed, ok := interfaces.ParseAmount(raw)
		if ok && parsed.Sign() >= 0 {
			amount = parsed
		} else {
			s.log.Warn("malformed disclosed amount, using zero", "handle", handle.Hex(), "value", raw)
		}
	} else {
		s.log.Debug("handle missing from disclosure result, using zero", "handle", handle.Hex())
	}

	s.transition(StateResolved)
	return c.result(req, StateResolved, handle, amount), nil
}

func (c *Coordinator) result(req Request, state State, handle interfaces.EncryptedHandle, amount *big.Int) *Result {
	return &Result{
		Token:     req.Token,
		Holder:    req.Holder,
		State:     state,
		Handle:    handle,
		Amount:    amount,
		Formatted: interfaces.FormatAmount(amount, c.cfg.Decimals),
	}
}

func decodeHandle(values []any) (interfaces.EncryptedHandle, error) {
	if len(values) != 1 {
		return interfaces.EncryptedHandle{}, fmt.Errorf("expected one output, got %d", len(values))
	}
	switch h := values[0].(type) {
	case [32]byte:
		return interfaces.EncryptedHandle(h), nil
	case interfaces.EncryptedHandle:
		return h, nil
	case common.Hash:
		return interfaces.EncryptedHandle(h), nil
	default:
		return interfaces.EncryptedHandle{}, fmt.Errorf("unexpected handle type %T", values[0])
	}
}

// wrapAs attaches sentinel to err unless err already carries it.
func wrapAs(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

type session struct {
	state    State
	observer Observer
	now      func() time.Time
	started  time.Time
	log      *slog.Logger
}

func (s *session) transition(to State) {
	s.emit(to, nil)
}

func (s *session) fail(err error) error {
	s.emit(StateFailed, err)
	s.log.Debug("disclosure failed", "err", err)
	return err
}

func (s *session) emit(to State, err error) {
	from := s.state
	s.state = to
	if s.observer != nil {
		s.observer(Transition{From: from, To: to, At: s.now(), Err: err})
	}
}
