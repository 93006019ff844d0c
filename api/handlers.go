/*
handlers.go - HTTP handlers for the redemption agent

PURPOSE:
  Exposes the conversation engine to chat gateways and the directory to
  operators. Handlers parse the request, delegate and serialize the answer.
  No business rule lives here.

ENDPOINTS:
  Operational:
    GET      /          Status: counts, last load, connectivity, open sessions
    GET|POST /reload    Force a directory reload, return the new counts

  Transports:
    POST /api/messages     JSON {from, text} -> {reply}
    POST /webhooks/twilio  Form From/Body    -> TwiML <Response><Message>

ERROR HANDLING:
  - 400: Malformed body, missing sender
  - 503: Directory reload failed
  Conversation failures are never HTTP errors: the engine always answers
  with a reply text, and the gateway must deliver it.

SECURITY NOTE:
  No authentication. Deploy behind the gateway's signed webhook or a
  private network.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - conversation/engine.go: Message handling
*/
package api

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/warp/rewards-bot/conversation"
	"github.com/warp/rewards-bot/directory"
	"github.com/warp/rewards-bot/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Directory *directory.Directory
	Engine    *conversation.Engine
	log       *logger.Logger
}

// NewHandler creates a handler over a directory and a conversation engine.
func NewHandler(dir *directory.Directory, engine *conversation.Engine, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		Directory: dir,
		Engine:    engine,
		log:       log.With("service", "API"),
	}
}

// =============================================================================
// OPERATIONAL HANDLERS
// =============================================================================

// Status reports what the directory last loaded and whether the backing
// store answered.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.Directory.Stats()
	resp := StatusDTO{
		Status:    "Ativo",
		Employees: st.EmployeeCount,
		Rewards:   st.RewardCount,
		Connected: st.Connected,
		Sessions:  h.Engine.Sessions(),
		LastError: st.LastError,
	}
	if !st.LoadedAt.IsZero() {
		at := st.LoadedAt
		resp.LoadedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reload re-reads both tables now.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Directory.Reload(r.Context())
	if err != nil {
		h.log.Error("manual reload failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "reload failed", err)
		return
	}
	h.log.Info("manual reload",
		"employees", snap.EmployeeCount(),
		"rewards", snap.RewardCount(),
	)
	writeJSON(w, http.StatusOK, ReloadResponse{
		Status:    "Recarregado",
		Employees: snap.EmployeeCount(),
		Rewards:   snap.RewardCount(),
		LoadedAt:  snap.LoadedAt,
	})
}

// =============================================================================
// TRANSPORT HANDLERS
// =============================================================================

// Message handles one chat message posted as JSON.
func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	from := strings.TrimSpace(req.From)
	if from == "" {
		writeError(w, http.StatusBadRequest, "from is required", nil)
		return
	}

	reply := h.Engine.Handle(r.Context(), from, req.Text)
	writeJSON(w, http.StatusOK, MessageResponse{Reply: reply})
}

// TwilioWebhook handles a messaging webhook (form fields From and Body) and
// answers with TwiML so the gateway relays the reply.
func (h *Handler) TwilioWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	from := strings.TrimSpace(r.PostForm.Get("From"))
	if from == "" {
		http.Error(w, "From is required", http.StatusBadRequest)
		return
	}

	reply := h.Engine.Handle(r.Context(), from, r.PostForm.Get("Body"))
	writeTwiML(w, reply)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeTwiML(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(xml.Header))
	xml.NewEncoder(w).Encode(twimlResponse{Message: reply})
}
