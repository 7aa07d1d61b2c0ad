package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/crypto"
	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/metrics"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/repository"
)

const (
	defaultMaxGroupSize = 32
	maxNameLength       = 100
	maxKeyBackupSize    = 4 << 10
)

// ChannelOptions agrupa a configuração do ChannelService
type ChannelOptions struct {
	RequireVerified bool
	MaxGroupSize    int
	LookupTimeout   time.Duration
	Logger          *logger.Logger
	Metrics         *metrics.Metrics
}

// ChannelService lida com a lógica de negócios de canais
type ChannelService struct {
	store           repository.Store // Precisa de UserStore e ChannelStore
	guard           *Guard
	requireVerified bool
	maxGroupSize    int
	lookup          lookup
	log             *logger.Logger
	now             func() time.Time
}

// NewChannelService cria um novo serviço de canais
func NewChannelService(store repository.Store, guard *Guard, opts ChannelOptions) *ChannelService {
	if opts.MaxGroupSize <= 0 {
		opts.MaxGroupSize = defaultMaxGroupSize
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &ChannelService{
		store:           store,
		guard:           guard,
		requireVerified: opts.RequireVerified,
		maxGroupSize:    opts.MaxGroupSize,
		lookup:          newLookup(opts.LookupTimeout, opts.Metrics),
		log:             opts.Logger,
		now:             Now,
	}
}

// CreateDirect abre (ou devolve) o canal direto entre initiator e recipient
func (s *ChannelService) CreateDirect(ctx context.Context, initiator models.Identity, rawRecipient string, publicKey []byte) (*models.Channel, error) {
	// 1. Validar a entrada
	recipient, err := ParseIdentity(rawRecipient)
	if err != nil {
		return nil, err
	}
	if recipient == initiator {
		return nil, apperr.ErrSelfChannel
	}
	if err := validatePublicKey(publicKey); err != nil {
		return nil, err
	}

	// 2. Criador verificado (se exigido) e destinatário existente
	if err := s.checkCreator(ctx, initiator); err != nil {
		return nil, err
	}
	if err := s.checkExists(ctx, recipient); err != nil {
		return nil, err
	}

	// 3. Criação idempotente pelo par
	wctx, cancel := s.lookup.ctx(ctx)
	defer cancel()
	ch, created, err := s.store.CreateDirect(wctx, initiator, recipient, publicKey, s.now())
	if err != nil {
		return nil, s.lookup.fail(err)
	}
	if !ch.Valid() {
		s.log.Errorw("canal direto com invariantes quebradas", "channelId", ch.ID, "participants", len(ch.Participants))
		return nil, apperr.ErrCorruptChannel
	}
	if created {
		s.log.Infow("canal direto criado", "channelId", ch.ID)
	}
	return ch, nil
}

// CreateGroup cria um canal de grupo com o criador e os membros informados
func (s *ChannelService) CreateGroup(ctx context.Context, creator models.Identity, name string, rawMembers []string) (*models.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, apperr.InvalidArg("group name is required")
	}

	members := make([]models.Identity, 0, len(rawMembers))
	seen := map[models.Identity]bool{creator: true}
	for _, raw := range rawMembers {
		id, err := ParseIdentity(raw)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members) == 0 {
		return nil, apperr.InvalidArg("a group needs at least one other participant")
	}
	if len(members)+1 > s.maxGroupSize {
		return nil, apperr.ErrGroupTooLarge
	}

	if err := s.checkCreator(ctx, creator); err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := s.checkExists(ctx, m); err != nil {
			return nil, err
		}
	}

	wctx, cancel := s.lookup.ctx(ctx)
	defer cancel()
	ch, err := s.store.CreateGroup(wctx, creator, name, members, s.now())
	if err != nil {
		return nil, s.lookup.fail(err)
	}
	s.log.Infow("canal de grupo criado", "channelId", ch.ID, "participants", len(ch.Participants))
	return ch, nil
}

// Import registra (ou reaproveita) o canal de uma comunidade externa e inclui o chamador
func (s *ChannelService) Import(ctx context.Context, caller models.Identity, provenance, name string) (*models.Channel, error) {
	provenance = strings.TrimSpace(provenance)
	if provenance == "" || len(provenance) > maxNameLength {
		return nil, apperr.InvalidArg("provenance is required")
	}
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return nil, apperr.InvalidArg("name is too long")
	}
	if name == "" {
		name = provenance
	}

	wctx, cancel := s.lookup.ctx(ctx)
	defer cancel()
	ch, err := s.store.CreateImported(wctx, caller, provenance, name, s.now())
	if err != nil {
		return nil, s.lookup.fail(err)
	}
	return ch, nil
}

// List devolve os resumos dos canais do chamador, mais recente primeiro
func (s *ChannelService) List(ctx context.Context, identity models.Identity) ([]models.ChannelSummary, error) {
	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	list, err := s.store.ListChannelsFor(ctx, identity)
	if err != nil {
		return nil, s.lookup.fail(err)
	}
	return list, nil
}

// Get devolve o canal completo apenas para participantes
func (s *ChannelService) Get(ctx context.Context, caller models.Identity, channelID string) (*models.Channel, error) {
	grant, err := s.guard.AuthorizeIdentity(ctx, caller, channelID, ActionView)
	if err != nil {
		return nil, err
	}

	lctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	ch, err := s.store.GetChannel(lctx, grant.ChannelID, caller)
	if err != nil {
		// Saiu do canal entre a checagem e a leitura: mesma resposta uniforme
		if errors.Is(err, apperr.ErrChannelNotFound) || errors.Is(err, apperr.ErrNotAMember) {
			return nil, apperr.ErrDenied
		}
		return nil, s.lookup.fail(err)
	}
	if !ch.Valid() {
		s.log.Errorw("canal com invariantes quebradas", "channelId", ch.ID, "kind", ch.Kind)
		return nil, apperr.ErrCorruptChannel
	}
	return ch, nil
}

// SetKey grava a chave pública do chamador no canal e, opcionalmente, o backup
// selado da chave privada. O servidor não abre o backup.
func (s *ChannelService) SetKey(ctx context.Context, caller models.Identity, channelID string, publicKey, keyBackup []byte) error {
	if len(publicKey) == 0 {
		return apperr.ErrInvalidPublicKey
	}
	if err := validatePublicKey(publicKey); err != nil {
		return err
	}
	if len(keyBackup) > maxKeyBackupSize {
		return apperr.InvalidArg("key backup is too large")
	}

	grant, err := s.guard.AuthorizeIdentity(ctx, caller, channelID, ActionKey)
	if err != nil {
		return err
	}

	wctx, cancel := s.lookup.ctx(ctx)
	defer cancel()
	err = s.store.SetParticipantKey(wctx, grant.ChannelID, caller, publicKey, keyBackup)
	if err != nil {
		if errors.Is(err, apperr.ErrChannelNotFound) || errors.Is(err, apperr.ErrNotAMember) {
			return apperr.ErrDenied
		}
		return s.lookup.fail(err)
	}
	return nil
}

func (s *ChannelService) checkCreator(ctx context.Context, identity models.Identity) error {
	if !s.requireVerified {
		return nil
	}
	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	u, err := s.store.GetUser(ctx, identity)
	if err != nil {
		if errors.Is(err, apperr.ErrUserNotFound) {
			return apperr.ErrNotVerified
		}
		return s.lookup.fail(err)
	}
	if !u.Verified {
		return apperr.ErrNotVerified
	}
	return nil
}

func (s *ChannelService) checkExists(ctx context.Context, identity models.Identity) error {
	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	if _, err := s.store.GetUser(ctx, identity); err != nil {
		return s.lookup.fail(err)
	}
	return nil
}

// validatePublicKey aceita vazio; qualquer outra coisa tem que ser um ponto P-256 válido
func validatePublicKey(pub []byte) error {
	if len(pub) == 0 {
		return nil
	}
	if _, err := crypto.ParsePublicKey(pub); err != nil {
		return apperr.ErrInvalidPublicKey
	}
	return nil
}
