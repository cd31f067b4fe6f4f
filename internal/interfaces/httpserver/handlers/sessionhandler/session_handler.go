package sessionhandler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/domain/session"
	"jan-server/services/chat-api/internal/domain/turn"
	"jan-server/services/chat-api/internal/interfaces/httpserver/middlewares"
	"jan-server/services/chat-api/internal/interfaces/httpserver/requests/sessionreq"
	"jan-server/services/chat-api/internal/interfaces/httpserver/responses"
	"jan-server/services/chat-api/internal/interfaces/httpserver/responses/sessionres"
	"jan-server/services/chat-api/internal/utils/idgen"
	"jan-server/services/chat-api/internal/utils/platformerrors"
)

type SessionContextKey string

const (
	SessionContextKeyID     SessionContextKey = "session_id"
	SessionContextEntity    SessionContextKey = "SessionContextEntity"
	ConversationParamKey                      = "conv_id"
	sseDoneFrame                              = "data: [DONE]\n\n"
	sseEventChunk                             = "chunk"
	sseEventTurn                              = "turn"
)

type SessionHandler struct {
	registry *session.Registry
	validate *validator.Validate
	log      zerolog.Logger
}

func NewSessionHandler(registry *session.Registry, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.With().Str("component", "session-handler").Logger(),
	}
}

// SessionMiddleware loads the session named in the path and checks that it
// belongs to the caller.
func (h *SessionHandler) SessionMiddleware() gin.HandlerFunc {
	return func(reqCtx *gin.Context) {
		sessionID := reqCtx.Param(string(SessionContextKeyID))
		if sessionID == "" {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "missing session id", "session.missing_id")
			return
		}
		if !idgen.ValidateIDFormat(sessionID, idgen.PrefixSession) {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, "session not found", "session.not_found")
			return
		}
		identity, ok := middlewares.IdentityFromContext(reqCtx)
		if !ok {
			responses.HandleNewError(reqCtx, platformerrors.ErrorTypeUnauthorized, "identity required", "session.no_identity")
			return
		}
		s, err := h.registry.Get(reqCtx.Request.Context(), sessionID, identity)
		if err != nil {
			responses.HandleError(reqCtx, err, "")
			return
		}
		reqCtx.Set(string(SessionContextEntity), s)
		reqCtx.Set("session_id", s.ID)
		reqCtx.Next()
	}
}

func GetSessionFromContext(reqCtx *gin.Context) (*session.Session, bool) {
	v, ok := reqCtx.Get(string(SessionContextEntity))
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Session)
	return s, ok
}

func (h *SessionHandler) CreateSession(reqCtx *gin.Context) {
	identity, ok := middlewares.IdentityFromContext(reqCtx)
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeUnauthorized, "identity required", "session.no_identity")
		return
	}
	s, err := h.registry.Create(identity)
	if err != nil {
		responses.HandleError(reqCtx, platformerrors.AsError(reqCtx.Request.Context(), platformerrors.LayerHandler, err, "failed to create session"), "")
		return
	}
	h.log.Info().Str("session_id", s.ID).Bool("anonymous", identity.Anonymous()).Msg("session created")
	reqCtx.JSON(http.StatusCreated, sessionres.NewSessionResponse(s))
}

func (h *SessionHandler) GetSession(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	reqCtx.JSON(http.StatusOK, sessionres.NewSessionResponse(s))
}

func (h *SessionHandler) SendTurn(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	var req sessionreq.TurnRequest
	if !h.bind(reqCtx, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, turn.ErrEmptyContent.Error(), "turn.validation")
		return
	}
	h.runTurn(reqCtx, sessionreq.StreamEnabled(req.Stream), func(opts turn.TurnOptions) (*turn.TurnResult, error) {
		opts.TargetModel = req.Model
		return s.Orchestrator.SendTurn(reqCtx.Request.Context(), req.Content, opts)
	})
}

func (h *SessionHandler) Regenerate(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	var req sessionreq.RegenerateRequest
	if reqCtx.Request.ContentLength != 0 && !h.bind(reqCtx, &req) {
		return
	}
	h.runTurn(reqCtx, sessionreq.StreamEnabled(req.Stream), func(opts turn.TurnOptions) (*turn.TurnResult, error) {
		opts.TargetModel = req.Model
		return s.Orchestrator.Regenerate(reqCtx.Request.Context(), opts)
	})
}

// runTurn writes either a JSON result or an SSE stream. The stream starts on
// the first chunk so a rejected turn still gets a plain JSON error.
func (h *SessionHandler) runTurn(reqCtx *gin.Context, stream bool, call func(turn.TurnOptions) (*turn.TurnResult, error)) {
	if !stream {
		result, err := call(turn.TurnOptions{})
		if err != nil {
			responses.HandleError(reqCtx, err, "")
			return
		}
		reqCtx.JSON(http.StatusOK, result)
		return
	}

	w := &sseWriter{reqCtx: reqCtx, log: h.log}
	result, err := call(turn.TurnOptions{
		OnChunk: func(chunk turn.Chunk) {
			w.event(sseEventChunk, chunk)
		},
	})
	if err != nil {
		if !w.started {
			responses.HandleError(reqCtx, err, "")
			return
		}
		w.event("error", responses.ErrorResponse{Error: err.Error()})
		w.done()
		return
	}
	w.event(sseEventTurn, result)
	w.done()
}

func (h *SessionHandler) NewConversation(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	s.Orchestrator.NewConversation()
	reqCtx.JSON(http.StatusOK, sessionres.NewSessionResponse(s))
}

func (h *SessionHandler) ListConversations(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	items, err := s.Orchestrator.Conversations(reqCtx.Request.Context())
	if err != nil {
		responses.HandleError(reqCtx, err, "failed to list conversations")
		return
	}
	reqCtx.JSON(http.StatusOK, sessionres.NewConversationListResponse(items))
}

func (h *SessionHandler) SelectConversation(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	convID, ok := conversationParam(reqCtx)
	if !ok {
		return
	}
	if err := s.Orchestrator.SelectConversation(reqCtx.Request.Context(), convID); err != nil {
		responses.HandleError(reqCtx, err, "")
		return
	}
	reqCtx.JSON(http.StatusOK, sessionres.NewSessionResponse(s))
}

func (h *SessionHandler) DeleteConversation(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	convID, ok := conversationParam(reqCtx)
	if !ok {
		return
	}
	if err := s.Orchestrator.DeleteConversation(reqCtx.Request.Context(), convID); err != nil {
		responses.HandleError(reqCtx, err, "")
		return
	}
	reqCtx.JSON(http.StatusOK, sessionres.DeletedResponse{ID: convID, Object: "conversation.deleted", Deleted: true})
}

func (h *SessionHandler) SelectModel(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	var req sessionreq.SelectModelRequest
	if !h.bind(reqCtx, &req) {
		return
	}
	if err := s.Orchestrator.SelectModel(req.Model); err != nil {
		responses.HandleError(reqCtx, err, "")
		return
	}
	reqCtx.JSON(http.StatusOK, sessionres.NewSessionResponse(s))
}

func (h *SessionHandler) Quota(reqCtx *gin.Context) {
	s, ok := h.mustSession(reqCtx)
	if !ok {
		return
	}
	reqCtx.JSON(http.StatusOK, sessionres.NewQuotaResponse(s.Orchestrator.QuotaStats(reqCtx.Request.Context())))
}

func (h *SessionHandler) mustSession(reqCtx *gin.Context) (*session.Session, bool) {
	s, ok := GetSessionFromContext(reqCtx)
	if !ok {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, "session not found", "session.not_found")
		return nil, false
	}
	return s, true
}

func conversationParam(reqCtx *gin.Context) (string, bool) {
	convID := reqCtx.Param(ConversationParamKey)
	if !idgen.ValidateIDFormat(convID, idgen.PrefixConversation) {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeNotFound, "conversation not found", "session.conversation_not_found")
		return "", false
	}
	return convID, true
}

func (h *SessionHandler) bind(reqCtx *gin.Context, req any) bool {
	if err := reqCtx.ShouldBindJSON(req); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, "invalid request body", "request.invalid_json")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		responses.HandleNewError(reqCtx, platformerrors.ErrorTypeValidation, err.Error(), "request.invalid_fields")
		return false
	}
	return true
}

type sseWriter struct {
	reqCtx  *gin.Context
	flusher http.Flusher
	started bool
	gone    bool
	log     zerolog.Logger
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	w.started = true
	flusher, ok := middlewares.PrepareSSE(w.reqCtx)
	if ok {
		w.flusher = flusher
	}
	w.reqCtx.Status(http.StatusOK)
}

func (w *sseWriter) event(name string, payload any) {
	w.start()
	if w.gone {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		w.log.Error().Err(err).Str("event", name).Msg("failed to encode SSE payload")
		return
	}
	w.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

func (w *sseWriter) done() {
	w.start()
	if !w.gone {
		w.write(sseDoneFrame)
	}
}

func (w *sseWriter) write(frame string) {
	if err := w.reqCtx.Request.Context().Err(); err != nil {
		w.gone = true
		w.log.Debug().Err(err).Msg("client disconnected, generation continues")
		return
	}
	if _, err := w.reqCtx.Writer.WriteString(frame); err != nil {
		w.gone = true
		return
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
}
