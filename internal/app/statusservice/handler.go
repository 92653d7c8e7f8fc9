package statusservice

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/logger"
)

// HTTPHandler adapts HTTP requests to the status service. Only dispatchers
// and admins may drive the state machine.
type HTTPHandler struct {
	logger *logger.Logger
	auth   ports.Authenticator
	svc    ports.StatusService
}

// NewHandler wires an HTTP handler around the status service.
func NewHandler(log *logger.Logger, auth ports.Authenticator, svc ports.StatusService) *HTTPHandler {
	return &HTTPHandler{logger: log, auth: auth, svc: svc}
}

// Register mounts the status routes on the provided mux.
func (handler *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PATCH /orders/{order_id}/status", handler.patchStatus)
	mux.HandleFunc("GET /orders/{order_id}/history", handler.getHistory)
}

type transitionRequest struct {
	Status    string `json:"status"`
	ChangedBy string `json:"changed_by"`
}

// --- Handlers ---

// patchStatus handles PATCH /orders/{order_id}/status and applies one transition.
func (handler *HTTPHandler) patchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "PATCH /orders/{order_id}/status", map[string]any{"order_id": orderID})

	identity, ok := handler.requireOperator(ctx, w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	next, ok := orders.ParseStatus(req.Status)
	if !ok {
		handler.writeErr(w, http.StatusBadRequest, "unknown status: "+req.Status)
		return
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy = identity.ID
	}

	result, err := handler.svc.Transition(ctx, ports.TransitionCommand{
		OrderID:   orderID,
		Next:      next,
		ChangedBy: changedBy,
	})
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			handler.writeErr(w, http.StatusNotFound, "not found")
		case errors.Is(err, orders.ErrInvalidTransition):
			handler.writeErr(w, http.StatusConflict, err.Error())
		default:
			handler.logger.Error(ctx, "status_transition_failed", "Status transition failed", err)
			handler.writeErr(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	handler.writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"orderId":   result.OrderID,
		"oldStatus": string(result.Old),
		"newStatus": string(result.New),
		"changedAt": result.ChangedAt,
	})
}

// getHistory handles GET /orders/{order_id}/history and returns the audit trail.
func (handler *HTTPHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "GET /orders/{order_id}/history", map[string]any{"order_id": orderID})

	if _, ok := handler.requireOperator(ctx, w, r); !ok {
		return
	}

	hist, err := handler.svc.History(ctx, orderID)
	if err != nil {
		handler.logger.Error(ctx, "db_query_failed", "Database query failed", err)
		handler.writeErr(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(hist) == 0 {
		handler.writeErr(w, http.StatusNotFound, "not found")
		return
	}

	out := make([]map[string]any, 0, len(hist))
	for i := range hist {
		out = append(out, map[string]any{
			"status":     string(hist[i].Status),
			"changed_by": hist[i].ChangedBy,
			"timestamp":  hist[i].ChangedAt,
		})
	}
	handler.writeJSON(w, http.StatusOK, map[string]any{"success": true, "history": out})
}

// --- Helpers ---

// requireOperator authenticates the bearer token and rejects customer roles.
func (handler *HTTPHandler) requireOperator(ctx context.Context, w http.ResponseWriter, r *http.Request) (ports.Identity, bool) {
	identity, err := handler.auth.Authenticate(ctx, bearerToken(r))
	if err != nil {
		handler.writeErr(w, http.StatusUnauthorized, "unauthenticated")
		return ports.Identity{}, false
	}
	if identity.Role != chat.RoleDispatcher && identity.Role != chat.RoleAdmin {
		handler.writeErr(w, http.StatusForbidden, "forbidden")
		return ports.Identity{}, false
	}
	return identity, true
}

// writeJSON writes the provided value as a JSON response with the given status code.
func (handler *HTTPHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr writes a JSON error response with a message.
func (handler *HTTPHandler) writeErr(w http.ResponseWriter, code int, msg string) {
	handler.writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *HTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// bearerToken pulls the credential from the Authorization header.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return ""
}
