package chatgateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/ports"
	"delivery-chat/internal/shared/logger"
)

// RESTHandler serves the polling surface: queue snapshots, chat history, and
// the no-WebSocket send fallback. Every route requires a bearer token; a
// customer only reaches their own orders.
type RESTHandler struct {
	logger   *logger.Logger
	auth     ports.Authenticator
	orders   ports.OrderRepository
	chat     ports.ChatService
	queue    ports.QueueService
	validate *validator.Validate
}

// NewRESTHandler wires the HTTP handler around the gateway services.
func NewRESTHandler(log *logger.Logger, auth ports.Authenticator, ordersRepo ports.OrderRepository, chatSvc ports.ChatService, queueSvc ports.QueueService) *RESTHandler {
	return &RESTHandler{
		logger:   log,
		auth:     auth,
		orders:   ordersRepo,
		chat:     chatSvc,
		queue:    queueSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register mounts the gateway's REST routes on the provided mux.
func (handler *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /orders/{order_id}/queue", handler.getQueue)
	mux.HandleFunc("GET /orders/{order_id}/chat", handler.getChat)
	mux.HandleFunc("POST /orders/{order_id}/chat/{role}", handler.postChat)
}

// sendMessageRequest is the POST body of the send fallback.
type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// --- Handlers ---

// getQueue handles GET /orders/{order_id}/queue and returns the queue snapshot.
func (handler *RESTHandler) getQueue(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "GET /orders/{order_id}/queue", map[string]any{"order_id": orderID})

	order, ok := handler.authorizeOrder(ctx, w, r, orderID)
	if !ok {
		return
	}

	snap, err := handler.queue.SnapshotFor(ctx, orderID)
	if err != nil {
		handler.maybeNotFound(ctx, w, err)
		return
	}

	resp := map[string]any{
		"success": true,
		"inQueue": snap.InQueue,
		"status":  string(snap.Status),
	}
	if snap.InQueue {
		resp["queueInfo"] = QueueInfo{Position: snap.Position, EstimatedTime: snap.EstimatedTime}
	} else if order.Status.Terminal() {
		resp["message"] = statusMessage(order.Status)
	}

	handler.writeJSON(w, http.StatusOK, resp)
}

// getChat handles GET /orders/{order_id}/chat and returns the message history,
// optionally bounded by a ?since=RFC3339 cursor for resync.
func (handler *RESTHandler) getChat(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "GET /orders/{order_id}/chat", map[string]any{"order_id": orderID})

	if _, ok := handler.authorizeOrder(ctx, w, r, orderID); !ok {
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			handler.writeErr(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}

	history, err := handler.chat.History(ctx, orderID, since)
	if err != nil {
		handler.maybeNotFound(ctx, w, err)
		return
	}

	out := make([]map[string]any, 0, len(history))
	for i := range history {
		out = append(out, map[string]any{
			"sender":    string(history[i].Sender),
			"content":   history[i].Content,
			"timestamp": history[i].CreatedAt,
			"readAt":    history[i].ReadAt,
		})
	}
	handler.writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": out})
}

// postChat handles POST /orders/{order_id}/chat/{role}: the send path for
// clients without a live connection. The role path segment is the sending
// party, client or livreur.
func (handler *RESTHandler) postChat(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	orderID := r.PathValue("order_id")
	handler.logger.Debug(ctx, "request_received", "POST /orders/{order_id}/chat/{role}", map[string]any{"order_id": orderID})

	sender, ok := chat.ParseSender(r.PathValue("role"))
	if !ok {
		handler.writeErr(w, http.StatusBadRequest, "unknown sender role")
		return
	}

	identity, order, ok := handler.authenticate(ctx, w, r, orderID)
	if !ok {
		return
	}
	// The sending party must match the caller's side of the conversation.
	if identity.Role.Sender() != sender {
		handler.writeErr(w, http.StatusForbidden, "forbidden")
		return
	}
	if identity.Role == chat.RoleCustomer && order.CustomerID != identity.ID {
		handler.writeErr(w, http.StatusForbidden, "forbidden")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.writeErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := handler.validate.Struct(&req); err != nil {
		handler.writeErr(w, http.StatusBadRequest, "content is required and capped at 2000 characters")
		return
	}

	msg, err := handler.chat.Send(ctx, ports.SendMessageCommand{
		OrderID: orderID,
		Sender:  sender,
		Content: req.Content,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidMessage):
			handler.writeErr(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, chat.ErrStoreUnavailable):
			handler.writeErr(w, http.StatusServiceUnavailable, "message store unavailable")
		default:
			handler.logger.Error(ctx, "message_send_failed", "Failed to send chat message", err)
			handler.writeErr(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	handler.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": map[string]any{
			"sender":    string(msg.Sender),
			"content":   msg.Content,
			"timestamp": msg.CreatedAt,
		},
	})
}

// --- Helpers ---

// authenticate resolves the bearer token and loads the order; it writes the
// error response itself when either step fails.
func (handler *RESTHandler) authenticate(ctx context.Context, w http.ResponseWriter, r *http.Request, orderID string) (ports.Identity, *orders.Order, bool) {
	identity, err := handler.auth.Authenticate(ctx, bearerToken(r))
	if err != nil {
		handler.writeErr(w, http.StatusUnauthorized, "unauthenticated")
		return ports.Identity{}, nil, false
	}

	order, err := handler.orders.GetByID(ctx, orderID)
	if err != nil {
		handler.maybeNotFound(ctx, w, err)
		return ports.Identity{}, nil, false
	}

	return identity, order, true
}

// authorizeOrder is authenticate plus the customer-owns-order check used by
// the read-only routes.
func (handler *RESTHandler) authorizeOrder(ctx context.Context, w http.ResponseWriter, r *http.Request, orderID string) (*orders.Order, bool) {
	identity, order, ok := handler.authenticate(ctx, w, r, orderID)
	if !ok {
		return nil, false
	}
	if identity.Role == chat.RoleCustomer && order.CustomerID != identity.ID {
		handler.writeErr(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return order, true
}

// maybeNotFound checks if the error indicates a not-found condition and writes a 404, otherwise logs the error and writes a 500.
func (handler *RESTHandler) maybeNotFound(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, pgx.ErrNoRows) {
		handler.writeErr(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, chat.ErrStoreUnavailable) {
		handler.writeErr(w, http.StatusServiceUnavailable, "message store unavailable")
		return
	}

	handler.logger.Error(ctx, "db_query_failed", "Database query failed", err)
	handler.writeErr(w, http.StatusInternalServerError, "internal server error")
}

// writeJSON writes the provided value as a JSON response with the given status code.
func (handler *RESTHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr writes a JSON error response with a message.
func (handler *RESTHandler) writeErr(w http.ResponseWriter, code int, msg string) {
	handler.writeJSON(w, code, map[string]any{"success": false, "error": msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *RESTHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
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

// bearerToken pulls the credential from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query param.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
