package repository

import (
	"context"
	"sync"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/models"

	"github.com/google/uuid"
)

// InMemoryStore é uma implementação em-memória da interface Store.
// Tudo que sai daqui é cópia; ninguém fora do store segura ponteiros internos.
type InMemoryStore struct {
	mu         sync.RWMutex
	users      map[models.Identity]*models.User
	challenges map[uuid.UUID]*models.Challenge
	channels   map[uuid.UUID]*models.Channel
	byDirect   map[string]uuid.UUID
	byOrigin   map[string]uuid.UUID
}

// NewInMemoryStore cria uma nova instância do store em memória
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:      make(map[models.Identity]*models.User),
		challenges: make(map[uuid.UUID]*models.Challenge),
		channels:   make(map[uuid.UUID]*models.Channel),
		byDirect:   make(map[string]uuid.UUID),
		byOrigin:   make(map[string]uuid.UUID),
	}
}

// --- UserStore ---

func (s *InMemoryStore) EnsureUser(ctx context.Context, identity models.Identity, at time.Time) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[identity]
	if !ok {
		u = &models.User{Identity: identity, CreatedAt: at}
		s.users[identity] = u
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) GetUser(ctx context.Context, identity models.Identity) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[identity]
	if !ok {
		return nil, apperr.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) SetVerified(ctx context.Context, identity models.Identity, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[identity]
	if !ok {
		return apperr.ErrUserNotFound
	}
	u.Verified = verified
	return nil
}

// --- ChallengeStore ---

func (s *InMemoryStore) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.challenges[c.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	cp := *c
	if c.ConsumedAt != nil {
		t := *c.ConsumedAt
		cp.ConsumedAt = &t
	}
	return &cp, nil
}

func (s *InMemoryStore) ConsumeChallenge(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return ErrChallengeNotFound
	}
	if c.State(at) != models.ChallengeIssued {
		return ErrChallengeSpent
	}
	c.ConsumedAt = &at
	return nil
}

// --- ChannelStore ---

func (s *InMemoryStore) CreateDirect(ctx context.Context, initiator, recipient models.Identity, initiatorKey []byte, at time.Time) (*models.Channel, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.DirectKey(initiator, recipient)
	if id, ok := s.byDirect[key]; ok {
		ch := s.channels[id]
		if p := ch.Participant(initiator); p != nil && len(p.PublicKey) == 0 && len(initiatorKey) > 0 {
			p.PublicKey = clone(initiatorKey)
		}
		return cloneChannel(ch), false, nil
	}

	ch := &models.Channel{
		ID:        uuid.New(),
		Kind:      models.KindDirect,
		CreatedAt: at,
		Participants: []models.Participant{
			{Identity: initiator, JoinedAt: at, PublicKey: clone(initiatorKey), IsCreator: true},
			{Identity: recipient, JoinedAt: at},
		},
		ReadMarks: map[models.Identity]time.Time{},
	}
	s.channels[ch.ID] = ch
	s.byDirect[key] = ch.ID
	return cloneChannel(ch), true, nil
}

func (s *InMemoryStore) CreateGroup(ctx context.Context, creator models.Identity, name string, members []models.Identity, at time.Time) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := &models.Channel{
		ID:           uuid.New(),
		Kind:         models.KindGroup,
		Name:         name,
		CreatedAt:    at,
		Participants: []models.Participant{{Identity: creator, JoinedAt: at, IsCreator: true}},
		ReadMarks:    map[models.Identity]time.Time{},
	}
	for _, m := range members {
		if !ch.HasParticipant(m) {
			ch.Participants = append(ch.Participants, models.Participant{Identity: m, JoinedAt: at})
		}
	}
	s.channels[ch.ID] = ch
	return cloneChannel(ch), nil
}

func (s *InMemoryStore) CreateImported(ctx context.Context, caller models.Identity, provenance, name string, at time.Time) (*models.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byOrigin[provenance]; ok {
		ch := s.channels[id]
		if !ch.HasParticipant(caller) {
			ch.Participants = append(ch.Participants, models.Participant{Identity: caller, JoinedAt: at})
		}
		return cloneChannel(ch), nil
	}

	ch := &models.Channel{
		ID:           uuid.New(),
		Kind:         models.KindImported,
		Name:         name,
		Provenance:   provenance,
		CreatedAt:    at,
		Participants: []models.Participant{{Identity: caller, JoinedAt: at, IsCreator: true}},
		ReadMarks:    map[models.Identity]time.Time{},
	}
	s.channels[ch.ID] = ch
	s.byOrigin[provenance] = ch.ID
	return cloneChannel(ch), nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[msg.ChannelID]
	if !ok {
		return nil, apperr.ErrChannelNotFound
	}
	if !ch.HasParticipant(msg.Sender) {
		return nil, apperr.ErrNotAMember
	}
	for _, m := range ch.Messages {
		if m.ID == msg.ID {
			existing := m
			return &existing, nil
		}
	}

	msg.Seq = int64(len(ch.Messages)) + 1
	ch.Messages = append(ch.Messages, msg)
	return &msg, nil
}

func (s *InMemoryStore) FindMessage(ctx context.Context, channelID, messageID uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, apperr.ErrChannelNotFound
	}
	for _, m := range ch.Messages {
		if m.ID == messageID {
			found := m
			return &found, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *InMemoryStore) ListChannelsFor(ctx context.Context, identity models.Identity) ([]models.ChannelSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Retorna lista vazia em vez de nil, para consistência
	out := []models.ChannelSummary{}
	for _, ch := range s.channels {
		if ch.HasParticipant(identity) {
			out = append(out, ch.Summary(identity))
		}
	}
	models.SortSummaries(out)
	return out, nil
}

func (s *InMemoryStore) GetChannel(ctx context.Context, channelID uuid.UUID, caller models.Identity) (*models.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return nil, apperr.ErrChannelNotFound
	}
	if !ch.HasParticipant(caller) {
		return nil, apperr.ErrNotAMember
	}
	return cloneChannel(ch), nil
}

func (s *InMemoryStore) Membership(ctx context.Context, channelID uuid.UUID, identity models.Identity) (models.ChannelKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return "", apperr.ErrChannelNotFound
	}
	if !ch.HasParticipant(identity) {
		return "", apperr.ErrNotAMember
	}
	return ch.Kind, nil
}

func (s *InMemoryStore) MarkRead(ctx context.Context, channelID uuid.UUID, identity models.Identity, at time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return time.Time{}, apperr.ErrChannelNotFound
	}
	if !ch.HasParticipant(identity) {
		return time.Time{}, apperr.ErrNotAMember
	}
	if cur, ok := ch.ReadMarks[identity]; ok && !at.After(cur) {
		return cur, nil
	}
	ch.ReadMarks[identity] = at
	return at, nil
}

func (s *InMemoryStore) SetParticipantKey(ctx context.Context, channelID uuid.UUID, identity models.Identity, publicKey, keyBackup []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[channelID]
	if !ok {
		return apperr.ErrChannelNotFound
	}
	p := ch.Participant(identity)
	if p == nil {
		return apperr.ErrNotAMember
	}
	p.PublicKey = clone(publicKey)
	p.KeyBackup = clone(keyBackup)
	return nil
}

func cloneChannel(ch *models.Channel) *models.Channel {
	cp := *ch
	cp.Participants = make([]models.Participant, len(ch.Participants))
	for i, p := range ch.Participants {
		p.PublicKey = clone(p.PublicKey)
		p.KeyBackup = clone(p.KeyBackup)
		cp.Participants[i] = p
	}
	cp.Messages = append([]models.Message{}, ch.Messages...)
	cp.ReadMarks = make(map[models.Identity]time.Time, len(ch.ReadMarks))
	for k, v := range ch.ReadMarks {
		cp.ReadMarks[k] = v
	}
	return &cp
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
