package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/metrics"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/realtime"
	"zeroep-backend/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Options agrupa o que o Handler precisa além dos serviços
type Options struct {
	AllowedOrigins []string
	CookieSecure   bool
	// BaseContext é cancelado no shutdown e encerra as conexões websocket
	BaseContext context.Context
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

// Handler gerencia as dependências para os handlers HTTP
type Handler struct {
	authService    *service.AuthService
	channelService *service.ChannelService
	guard          *service.Guard
	protocol       *realtime.Protocol
	validate       *validator.Validate
	upgrader       websocket.Upgrader

	allowedOrigins []string
	cookieSecure   bool
	baseCtx        context.Context
	log            *logger.Logger
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
}

// NewHandler cria uma nova instância do Handler
func NewHandler(
	authSvc *service.AuthService,
	channelSvc *service.ChannelService,
	guard *service.Guard,
	protocol *realtime.Protocol,
	opts Options,
) *Handler {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	h := &Handler{
		authService:    authSvc,
		channelService: channelSvc,
		guard:          guard,
		protocol:       protocol,
		validate:       validator.New(),
		allowedOrigins: opts.AllowedOrigins,
		cookieSecure:   opts.CookieSecure,
		baseCtx:        opts.BaseContext,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		gatherer:       opts.Gatherer,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// === Funções Auxiliares de Resposta ===

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

// respondWithAppError traduz o código do apperr em status HTTP. A causa
// só vai para o log.
func (h *Handler) respondWithAppError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(apperr.CodeOf(err))
	if status >= http.StatusInternalServerError {
		h.log.Errorw("requisição falhou", "status", status, "error", err)
	}
	h.respondWithError(w, status, apperr.Message(err))
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("erro ao serializar JSON", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"An error has occurred."}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// decode lê e valida o corpo JSON
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid data: "+err.Error())
		return false
	}
	return true
}

// === Schemas de Requisição e Resposta ===

type (
	VerifyRequest struct {
		Identity    string `json:"identity" validate:"required"`
		ChallengeID string `json:"challengeId" validate:"required"`
		Signature   string `json:"signature" validate:"required"`
	}

	VerifyResponse struct {
		Status    string          `json:"status"`
		Identity  models.Identity `json:"identity"`
		Token     string          `json:"token"`
		ExpiresAt time.Time       `json:"expiresAt"`
	}

	DirectRequest struct {
		Recipient string `json:"recipient" validate:"required"`
		PublicKey []byte `json:"publicKey,omitempty"`
	}

	GroupRequest struct {
		Name         string   `json:"name" validate:"required"`
		Participants []string `json:"participants" validate:"required,min=1,dive,required"`
	}

	ImportRequest struct {
		Provenance string `json:"provenance" validate:"required"`
		Name       string `json:"name"`
	}

	KeyRequest struct {
		PublicKey []byte `json:"publicKey" validate:"required"`
		KeyBackup []byte `json:"keyBackup,omitempty"`
	}

	ChannelCreatedResponse struct {
		ChannelID string `json:"channelId"`
	}

	// ChannelDetail esconde o backup de chave dos outros participantes
	ChannelDetail struct {
		ID           string               `json:"id"`
		Kind         models.ChannelKind   `json:"kind"`
		Title        string               `json:"title"`
		Name         string               `json:"name,omitempty"`
		Provenance   string               `json:"provenance,omitempty"`
		CreatedAt    time.Time            `json:"createdAt"`
		Participants []models.Participant `json:"participants"`
		Messages     []models.Message     `json:"messages"`
		ReadMarks    map[string]time.Time `json:"readMarks"`
	}
)

func channelDetail(ch *models.Channel, viewer models.Identity) ChannelDetail {
	parts := make([]models.Participant, len(ch.Participants))
	for i, p := range ch.Participants {
		if p.Identity != viewer {
			p.KeyBackup = nil
		}
		parts[i] = p
	}
	marks := make(map[string]time.Time, len(ch.ReadMarks))
	for id, at := range ch.ReadMarks {
		marks[id.String()] = at
	}
	msgs := ch.Messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	return ChannelDetail{
		ID:           ch.ID.String(),
		Kind:         ch.Kind,
		Title:        ch.Title(viewer),
		Name:         ch.Name,
		Provenance:   ch.Provenance,
		CreatedAt:    ch.CreatedAt,
		Participants: parts,
		Messages:     msgs,
		ReadMarks:    marks,
	}
}

// === Handlers de Autenticação ===

// handleIssueChallenge (POST /auth/challenge?identity=)
func (h *Handler) handleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.authService.IssueChallenge(r.Context(), r.URL.Query().Get("identity"))
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, c)
}

// handleVerify (POST /auth/verify)
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	cred, err := h.authService.VerifyAndIssueSession(r.Context(), req.Identity, req.ChallengeID, req.Signature)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    cred.Token,
		Path:     "/",
		Expires:  cred.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.respondWithJSON(w, http.StatusOK, VerifyResponse{
		Status:    "ok",
		Identity:  cred.Identity,
		Token:     cred.Token,
		ExpiresAt: cred.ExpiresAt,
	})
}

// handleMe (GET /auth)
func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"identity": user.Identity,
		"verified": user.Verified,
	})
}

// handleUserExists (GET /auth/user-exists?identity=)
func (h *Handler) handleUserExists(w http.ResponseWriter, r *http.Request) {
	exists, err := h.authService.UserExists(r.Context(), r.URL.Query().Get("identity"))
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// handleVerifyProof (POST /auth/verify-proof)
func (h *Handler) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	var proof auth.Proof
	if !h.decode(w, r, &proof) {
		return
	}

	updated, err := h.authService.VerifyProof(r.Context(), user.Identity, proof)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"identity": updated.Identity,
		"verified": updated.Verified,
	})
}

// === Handlers de Canal ===

// handleCreateDirect (PUT /channel/direct)
func (h *Handler) handleCreateDirect(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	var req DirectRequest
	if !h.decode(w, r, &req) {
		return
	}

	ch, err := h.channelService.CreateDirect(r.Context(), user.Identity, req.Recipient, req.PublicKey)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, ChannelCreatedResponse{ChannelID: ch.ID.String()})
}

// handleCreateGroup (PUT /channel/group)
func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	var req GroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	ch, err := h.channelService.CreateGroup(r.Context(), user.Identity, req.Name, req.Participants)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusCreated, ChannelCreatedResponse{ChannelID: ch.ID.String()})
}

// handleImport (PUT /channel/import)
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	var req ImportRequest
	if !h.decode(w, r, &req) {
		return
	}

	ch, err := h.channelService.Import(r.Context(), user.Identity, req.Provenance, req.Name)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, ChannelCreatedResponse{ChannelID: ch.ID.String()})
}

// handleListChannels (GET /channel/list)
func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}

	summaries, err := h.channelService.List(r.Context(), user.Identity)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, summaries)
}

// handleGetChannel (GET /channel/{id})
func (h *Handler) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}

	ch, err := h.channelService.Get(r.Context(), user.Identity, chi.URLParam(r, "id"))
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, channelDetail(ch, user.Identity))
}

// handleSetKey (PUT /channel/{id}/key)
func (h *Handler) handleSetKey(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r)
	if !ok {
		h.respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	var req KeyRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.channelService.SetKey(r.Context(), user.Identity, chi.URLParam(r, "id"), req.PublicKey, req.KeyBackup)
	if err != nil {
		h.respondWithAppError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
