package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/metrics"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/repository"
	"zeroep-backend/internal/service"

	"github.com/google/uuid"
)

const (
	defaultStoreTimeout = 5 * time.Second
	// defaultReplayLimit fica abaixo de defaultSendBuffer para o replay não derrubar o peer
	defaultReplayLimit  = 128
)

// Authorizer é o MembershipGuard visto pelo protocolo
type Authorizer interface {
	Authenticate(ctx context.Context, credential string) (models.Identity, error)
	Authorize(ctx context.Context, credential, channelID string, action service.Action) (service.Grant, error)
}

// MessageLog é a parte do ChannelStore que o protocolo escreve
type MessageLog interface {
	AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	FindMessage(ctx context.Context, channelID, messageID uuid.UUID) (*models.Message, error)
	MarkRead(ctx context.Context, channelID uuid.UUID, identity models.Identity, at time.Time) (time.Time, error)
	GetChannel(ctx context.Context, channelID uuid.UUID, caller models.Identity) (*models.Channel, error)
}

type Options struct {
	// StoreTimeout limita cada escrita; escritas não herdam o cancelamento da conexão
	StoreTimeout time.Duration
	// ReplayLimit é quantas mensagens recentes o join reenvia
	ReplayLimit  int
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

// Protocol é a máquina de estados por conexão: join, send, update-read, leave
type Protocol struct {
	guard        Authorizer
	store        MessageLog
	hub          *Hub
	storeTimeout time.Duration
	replayLimit  int
	log          *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	newID        func() uuid.UUID
}

func NewProtocol(guard Authorizer, store MessageLog, hub *Hub, opts Options) *Protocol {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	if opts.ReplayLimit <= 0 {
		opts.ReplayLimit = defaultReplayLimit
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Protocol{
		guard:        guard,
		store:        store,
		hub:          hub,
		storeTimeout: opts.StoreTimeout,
		replayLimit:  opts.ReplayLimit,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		now:          service.Now,
		newID:        uuid.New,
	}
}

// Handle decodifica um frame e despacha. Chamado em série pela conexão.
func (p *Protocol) Handle(ctx context.Context, peer *Peer, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		p.reply(peer, EventError, ErrorData{Message: "malformed event"})
		return
	}

	switch env.Event {
	case EventJoinRoom:
		var req RoomRequest
		if !p.decode(peer, env, &req) {
			return
		}
		p.Join(ctx, peer, req)
	case EventSendMessage:
		var req SendRequest
		if !p.decode(peer, env, &req) {
			return
		}
		p.Send(ctx, peer, req)
	case EventUpdateRead:
		var req RoomRequest
		if !p.decode(peer, env, &req) {
			return
		}
		p.UpdateRead(ctx, peer, req)
	case EventLeaveRoom:
		var req RoomRequest
		if !p.decode(peer, env, &req) {
			return
		}
		p.Leave(ctx, peer, req)
	default:
		p.reply(peer, EventError, ErrorData{Message: "unknown event " + env.Event})
	}
}

func (p *Protocol) decode(peer *Peer, env Envelope, v interface{}) bool {
	if len(env.Data) == 0 || json.Unmarshal(env.Data, v) != nil {
		p.reply(peer, EventError, ErrorData{Message: "malformed " + env.Event + " payload"})
		return false
	}
	return true
}

// Join autoriza, move a marca de leitura para agora, reenvia as mensagens
// recentes só para o peer e então o inscreve no grupo. Tudo sob o lock do
// canal: nenhum broadcast cai entre o replay e a inscrição.
func (p *Protocol) Join(ctx context.Context, peer *Peer, req RoomRequest) {
	grant, err := p.guard.Authorize(ctx, peer.credentialFor(req.Credential), req.ChannelID, service.ActionJoin)
	if err != nil {
		p.failJoin(peer, req.ChannelID, err)
		return
	}

	unlock := p.hub.Sequence(grant.ChannelID)
	defer unlock()

	// Canais importados não têm recibo de leitura
	if grant.Kind != models.KindImported {
		if _, err := p.markRead(ctx, grant); err != nil {
			p.failJoin(peer, req.ChannelID, err)
			return
		}
	}

	ch, err := p.loadChannel(ctx, grant)
	if err != nil {
		p.failJoin(peer, req.ChannelID, err)
		return
	}

	p.reply(peer, EventJoinRoomResponse, JoinResponse{Success: true, ChannelID: grant.ChannelID.String()})
	backlog := ch.Messages
	if len(backlog) > p.replayLimit {
		backlog = backlog[len(backlog)-p.replayLimit:]
	}
	for i := range backlog {
		p.reply(peer, EventMessageResponse, messageResponse(&backlog[i]))
	}

	p.hub.Subscribe(grant.ChannelID, peer)
	p.metrics.Event(EventJoinRoom, "ok")
}

func (p *Protocol) failJoin(peer *Peer, channelID string, err error) {
	p.fail(peer, EventJoinRoom, err)
	p.reply(peer, EventJoinRoomResponse, JoinResponse{ChannelID: channelID, Message: apperr.Message(err)})
}

// loadChannel lê o estado do canal com prazo; mensagens vêm em ordem de seq
func (p *Protocol) loadChannel(ctx context.Context, grant service.Grant) (*models.Channel, error) {
	gctx, cancel := context.WithTimeout(ctx, p.storeTimeout)
	defer cancel()

	ch, err := p.store.GetChannel(gctx, grant.ChannelID, grant.Identity)
	if err != nil {
		if errors.Is(err, apperr.ErrNotAMember) || errors.Is(err, apperr.ErrChannelNotFound) {
			return nil, apperr.ErrDenied
		}
		if apperr.CodeOf(err) == apperr.CodeUnknown {
			return nil, apperr.Unavailable(err)
		}
		return nil, err
	}
	return ch, nil
}

// Send grava o ciphertext e só então faz o broadcast para o grupo inteiro,
// remetente incluído. Falhas vão só para o remetente.
func (p *Protocol) Send(ctx context.Context, peer *Peer, req SendRequest) {
	grant, err := p.guard.Authorize(ctx, peer.credentialFor(req.Credential), req.ChannelID, service.ActionSend)
	if err == nil {
		err = validateCiphertext(req.Ciphertext)
	}
	if err != nil {
		p.failSend(peer, req.ChannelID, err)
		return
	}

	msg := models.Message{
		ID:         p.newID(),
		ChannelID:  grant.ChannelID,
		Sender:     grant.Identity,
		Ciphertext: req.Ciphertext,
		SentAt:     p.now(),
	}

	unlock := p.hub.Sequence(grant.ChannelID)
	defer unlock()

	stored, err := p.append(ctx, msg)
	if err != nil {
		p.log.Warnw("falha ao gravar mensagem", "channelId", grant.ChannelID, "messageId", msg.ID, "error", err)
		p.failSend(peer, req.ChannelID, err)
		return
	}
	p.metrics.MessageStored()

	frame, err := encodeFrame(EventMessageResponse, messageResponse(stored))
	if err != nil {
		p.log.Errorw("falha ao serializar broadcast", "error", err)
		return
	}
	p.hub.Broadcast(grant.ChannelID, frame)
	if !p.hub.IsSubscribed(grant.ChannelID, peer) {
		peer.Deliver(frame)
	}
	p.metrics.Event(EventSendMessage, "ok")
}

// append grava a mensagem num contexto que a conexão não cancela. Se o
// resultado for ambíguo, consulta o log pelo ID antes de declarar falha.
func (p *Protocol) append(ctx context.Context, msg models.Message) (*models.Message, error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	stored, err := p.store.AppendMessage(actx, msg)
	cancel()
	if err == nil {
		return stored, nil
	}
	if apperr.CodeOf(err) != apperr.CodeUnavailable {
		if errors.Is(err, apperr.ErrNotAMember) || errors.Is(err, apperr.ErrChannelNotFound) {
			return nil, apperr.ErrDenied
		}
		return nil, err
	}

	qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	defer cancel()
	found, qerr := p.store.FindMessage(qctx, msg.ChannelID, msg.ID)
	if qerr == nil {
		p.log.Infow("gravação ambígua confirmada no log", "messageId", msg.ID)
		return found, nil
	}
	if !errors.Is(qerr, repository.ErrMessageNotFound) {
		p.log.Errorw("estado da mensagem desconhecido após falha", "messageId", msg.ID, "error", qerr)
	}
	return nil, err
}

// UpdateRead move a marca do chamador e avisa o grupo
func (p *Protocol) UpdateRead(ctx context.Context, peer *Peer, req RoomRequest) {
	grant, err := p.guard.Authorize(ctx, peer.credentialFor(req.Credential), req.ChannelID, service.ActionRead)
	if err != nil {
		p.fail(peer, EventUpdateRead, err)
		p.reply(peer, EventUpdateReadResponse, Result{ChannelID: req.ChannelID, Message: apperr.Message(err)})
		return
	}

	unlock := p.hub.Sequence(grant.ChannelID)
	defer unlock()

	mark, err := p.markRead(ctx, grant)
	if err != nil {
		p.fail(peer, EventUpdateRead, err)
		p.reply(peer, EventUpdateReadResponse, Result{ChannelID: req.ChannelID, Message: apperr.Message(err)})
		return
	}

	frame, err := encodeFrame(EventReadData, ReadData{Identity: grant.Identity, ChannelID: grant.ChannelID.String(), At: mark})
	if err != nil {
		p.log.Errorw("falha ao serializar broadcast", "error", err)
		return
	}
	p.hub.Broadcast(grant.ChannelID, frame)
	if !p.hub.IsSubscribed(grant.ChannelID, peer) {
		peer.Deliver(frame)
	}
	p.metrics.Event(EventUpdateRead, "ok")
}

func (p *Protocol) markRead(ctx context.Context, grant service.Grant) (time.Time, error) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.storeTimeout)
	defer cancel()

	mark, err := p.store.MarkRead(mctx, grant.ChannelID, grant.Identity, p.now())
	if err != nil {
		if errors.Is(err, apperr.ErrNotAMember) || errors.Is(err, apperr.ErrChannelNotFound) {
			return time.Time{}, apperr.ErrDenied
		}
		if apperr.CodeOf(err) == apperr.CodeUnknown {
			return time.Time{}, apperr.Unavailable(err)
		}
		return time.Time{}, err
	}
	return mark, nil
}

// Leave tira o peer de um grupo. Só exige sessão válida.
func (p *Protocol) Leave(ctx context.Context, peer *Peer, req RoomRequest) {
	if _, err := p.guard.Authenticate(ctx, peer.credentialFor(req.Credential)); err != nil {
		p.fail(peer, EventLeaveRoom, err)
		p.reply(peer, EventLeaveRoomResponse, Result{ChannelID: req.ChannelID, Message: apperr.Message(err)})
		return
	}
	if id, err := uuid.Parse(req.ChannelID); err == nil {
		p.hub.Unsubscribe(id, peer)
	}
	p.metrics.Event(EventLeaveRoom, "ok")
	p.reply(peer, EventLeaveRoomResponse, Result{Success: true, ChannelID: req.ChannelID})
}

// Disconnect sai de todos os grupos. Nenhum estado durável muda.
func (p *Protocol) Disconnect(peer *Peer) {
	p.hub.Drop(peer)
	peer.Close()
}

func (p *Protocol) failSend(peer *Peer, channelID string, err error) {
	p.fail(peer, EventSendMessage, err)
	p.reply(peer, EventMessageResponse, MessageResponse{ChannelID: channelID, Message: apperr.Message(err)})
}

func (p *Protocol) fail(peer *Peer, event string, err error) {
	code := apperr.CodeOf(err)
	p.metrics.Event(event, string(code))
	if code == apperr.CodeUnavailable || code == apperr.CodeInternal || code == apperr.CodeUnknown {
		p.log.Warnw("evento falhou", "event", event, "peer", peer.ID, "error", err)
	}
}

// reply entrega só para o peer que pediu
func (p *Protocol) reply(peer *Peer, event string, data interface{}) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		p.log.Errorw("falha ao serializar resposta", "event", event, "error", err)
		return
	}
	peer.Deliver(frame)
}

func validateCiphertext(ct string) error {
	if strings.TrimSpace(ct) == "" {
		return apperr.ErrEmptyMessage
	}
	if len(ct) > MaxCiphertextSize {
		return apperr.InvalidArg("message is too large")
	}
	return nil
}
