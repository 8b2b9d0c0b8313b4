package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ruteri/confidential-launchpad/disclosure"
	"github.com/ruteri/confidential-launchpad/interfaces"
	"github.com/ruteri/confidential-launchpad/mutation"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024

	// wsWriteWait bounds a single websocket write.
	wsWriteWait = 10 * time.Second
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// TokenLister serves the aggregated token list.
type TokenLister interface {
	List(ctx context.Context) ([]interfaces.TokenRecord, error)
	Get(ctx context.Context, token common.Address) (*interfaces.TokenRecord, bool, error)
}

// TokenView is the JSON representation of a token record.
type TokenView struct {
	Address           common.Address `json:"address"`
	Creator           common.Address `json:"creator"`
	CreatedAt         int64          `json:"createdAt"`
	CreatedTime       string         `json:"createdTime"`
	Name              string         `json:"name"`
	Symbol            string         `json:"symbol"`
	FreemintAllowance string         `json:"freemintAllowance"`
	FreemintFormatted string         `json:"freemintFormatted"`
	IsCreator         bool           `json:"isCreator"`
}

// CreateTokenRequest is the body of POST /api/tokens.
type CreateTokenRequest struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// BalanceView is the JSON representation of a disclosed balance.
type BalanceView struct {
	Token     common.Address             `json:"token"`
	Holder    common.Address             `json:"holder"`
	State     disclosure.State           `json:"state"`
	Handle    interfaces.EncryptedHandle `json:"handle"`
	Amount    string                     `json:"amount"`
	Formatted string                     `json:"formatted"`
}

// Handler serves the launchpad API on top of the token registry aggregator,
// the disclosure coordinator and the mutation manager.
type Handler struct {
	tokens     TokenLister
	disclosure *disclosure.Coordinator
	mutations  *mutation.Manager
	signer     interfaces.AuthorizationSigner
	decimals   int
	log        *slog.Logger

	upgrader websocket.Upgrader
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
//
// Parameters:
//   - tokens: Aggregated token list
//   - coordinator: Disclosure coordinator used for balance requests
//   - mutations: Mutation manager for token creation and freemint
//   - signer: Identity of the server, may be nil for a read-only deployment
//   - decimals: Token precision used to format amounts
//   - log: Structured logger for operational insights
//
// Returns a configured Handler instance.
func NewHandler(tokens TokenLister, coordinator *disclosure.Coordinator, mutations *mutation.Manager, signer interfaces.AuthorizationSigner, decimals int, log *slog.Logger) *Handler {
	return &Handler{
		tokens:     tokens,
		disclosure: coordinator,
		mutations:  mutations,
		signer:     signer,
		decimals:   decimals,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleListTokens returns every token known to the factory.
//
// URL format: GET /api/tokens[?holder=0x...]
//
// When holder is omitted the server identity is used to compute isCreator.
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	holder, err := h.holderFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	records, err := h.tokens.List(r.Context())
	if err != nil {
		h.log.Error("Failed to list tokens", "err", err)
		h.writeError(w, err)
		return
	}

	views := make([]TokenView, 0, len(records))
	for _, record := range records {
		views = append(views, h.tokenView(record, holder))
	}
	h.writeJSON(w, http.StatusOK, views)
}

// HandleGetToken returns a single token.
//
// URL format: GET /api/tokens/{address}[?holder=0x...]
func (h *Handler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "address")
	if err != nil {
		h.writeError(w, err)
		return
	}
	holder, err := h.holderFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	record, ok, err := h.tokens.Get(r.Context(), token)
	if err != nil {
		h.log.Error("Failed to get token", "err", err, "token", token.Hex())
		h.writeError(w, err)
		return
	}
	if !ok {
		h.writeError(w, &RequestError{StatusCode: http.StatusNotFound, Err: fmt.Errorf("token %s not found", token.Hex())})
		return
	}
	h.writeJSON(w, http.StatusOK, h.tokenView(*record, holder))
}

// HandleCreateToken submits the creation of a confidential token.
//
// URL format: POST /api/tokens
//
// Request body: {"name": "...", "symbol": "..."}
//
// Response: 202 with the mutation snapshot once the transaction is pending.
func (h *Handler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		h.writeError(w, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid request body: %w", err)})
		return
	}

	record, err := h.mutations.CreateToken(r.Context(), req.Name, req.Symbol)
	h.writeMutation(w, record, err)
}

// HandleFreemint submits a freemint on the token.
//
// URL format: POST /api/tokens/{address}/freemint
func (h *Handler) HandleFreemint(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "address")
	if err != nil {
		h.writeError(w, err)
		return
	}

	record, err := h.mutations.Freemint(r.Context(), token)
	h.writeMutation(w, record, err)
}

// HandleDecryptBalance discloses the server identity's balance of a token.
//
// URL format: POST /api/tokens/{address}/decrypt
func (h *Handler) HandleDecryptBalance(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "address")
	if err != nil {
		h.writeError(w, err)
		return
	}

	req := disclosure.Request{Token: token}
	if h.signer != nil {
		req.Holder = h.signer.Address()
		req.Signer = h.signer
	}

	result, err := h.disclosure.Disclose(r.Context(), req)
	if err != nil {
		h.log.Warn("Balance disclosure failed", "err", err, "token", token.Hex())
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, BalanceView{
		Token:     result.Token,
		Holder:    result.Holder,
		State:     result.State,
		Handle:    result.Handle,
		Amount:    result.Amount.String(),
		Formatted: result.Formatted,
	})
}

// HandleGetMutation returns the current snapshot of a mutation.
//
// URL format: GET /api/mutations/{id}
func (h *Handler) HandleGetMutation(w http.ResponseWriter, r *http.Request) {
	record, err := h.mutationFromPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record.Snapshot())
}

// HandleMutationEvents streams the transitions of a mutation over a websocket.
// The current state is sent first and the connection is closed normally after
// the terminal event.
//
// URL format: GET /api/mutations/{id}/events
func (h *Handler) HandleMutationEvents(w http.ResponseWriter, r *http.Request) {
	record, err := h.mutationFromPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "err", err, "mutation", record.ID)
		return
	}
	defer conn.Close()

	events, unsubscribe := record.Subscribe()
	defer unsubscribe()

	// Detect client disconnects, the stream is write-only otherwise.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug("Websocket write failed", "err", err, "mutation", record.ID)
				return
			}
		case <-closed:
			return
		}
	}
}

func (h *Handler) writeMutation(w http.ResponseWriter, record *mutation.Record, err error) {
	if err != nil {
		h.log.Warn("Mutation failed", "err", err)
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/mutations/"+record.ID.String())
	h.writeJSON(w, http.StatusAccepted, record.Snapshot())
}

func (h *Handler) mutationFromPath(r *http.Request) (*mutation.Record, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid mutation id: %w", err)}
	}
	record, ok := h.mutations.Get(id)
	if !ok {
		return nil, &RequestError{StatusCode: http.StatusNotFound, Err: fmt.Errorf("mutation %s not found", id)}
	}
	return record, nil
}

func (h *Handler) holderFromQuery(r *http.Request) (common.Address, error) {
	raw := r.URL.Query().Get("holder")
	if raw == "" {
		if h.signer != nil {
			return h.signer.Address(), nil
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid holder address %q", raw)}
	}
	return common.HexToAddress(raw), nil
}

func (h *Handler) tokenView(record interfaces.TokenRecord, holder common.Address) TokenView {
	allowance := "0"
	if record.FreemintAllowance != nil {
		allowance = record.FreemintAllowance.String()
	}
	return TokenView{
		Address:           record.Address,
		Creator:           record.Creator,
		CreatedAt:         record.CreatedAt,
		CreatedTime:       record.CreatedTime().UTC().Format(time.RFC3339),
		Name:              record.Name,
		Symbol:            record.Symbol,
		FreemintAllowance: allowance,
		FreemintFormatted: record.FormattedAllowance(h.decimals),
		IsCreator:         holder != (common.Address{}) && record.IsCreator(holder),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, statusCode(err), map[string]string{"error": err.Error()})
}

// statusCode maps the error taxonomy onto HTTP status codes.
func statusCode(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrMutationInFlight):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrMutationRejected):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrSignatureDeclined):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrRegistryUnavailable),
		errors.Is(err, interfaces.ErrDisclosureServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, interfaces.ErrChainRead),
		errors.Is(err, interfaces.ErrDisclosureRequestFailed),
		errors.Is(err, interfaces.ErrMutationReverted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func addressParam(r *http.Request, name string) (common.Address, error) {
	raw := chi.URLParam(r, name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid contract address %q", raw)}
	}
	return common.HexToAddress(raw), nil
}
