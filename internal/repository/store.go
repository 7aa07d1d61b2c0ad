package repository

import (
	"context"
	"errors"
	"time"

	"zeroep-backend/internal/models"

	"github.com/google/uuid"
)

// Erros locais do repositório. Falhas de canal/membro usam os sentinelas de apperr.
var (
	ErrChallengeNotFound = errors.New("desafio não encontrado")
	ErrChallengeSpent    = errors.New("desafio já consumido ou expirado")
	ErrMessageNotFound   = errors.New("mensagem não encontrada")
)

// UserStore define a interface para o registro de identidades
type UserStore interface {
	// EnsureUser cria o registro na primeira vez e devolve o existente depois
	EnsureUser(ctx context.Context, identity models.Identity, at time.Time) (*models.User, error)
	GetUser(ctx context.Context, identity models.Identity) (*models.User, error)
	SetVerified(ctx context.Context, identity models.Identity, verified bool) error
}

// ChallengeStore define a interface para os desafios de login
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error)
	// ConsumeChallenge é um compare-and-set: só um chamador vence, e só
	// enquanto o desafio não expirou em 'at'.
	ConsumeChallenge(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ChannelStore define a interface para canais, participantes, log de mensagens e marcas de leitura
type ChannelStore interface {
	// CreateDirect é idempotente pelo par não ordenado. created=false quando o canal já existia.
	CreateDirect(ctx context.Context, initiator, recipient models.Identity, initiatorKey []byte, at time.Time) (ch *models.Channel, created bool, err error)
	CreateGroup(ctx context.Context, creator models.Identity, name string, members []models.Identity, at time.Time) (*models.Channel, error)
	// CreateImported é idempotente pela proveniência e adiciona o chamador como participante.
	CreateImported(ctx context.Context, caller models.Identity, provenance, name string, at time.Time) (*models.Channel, error)

	// AppendMessage atribui o próximo seq do canal. Um ID já gravado devolve a mensagem existente.
	AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	FindMessage(ctx context.Context, channelID, messageID uuid.UUID) (*models.Message, error)

	ListChannelsFor(ctx context.Context, identity models.Identity) ([]models.ChannelSummary, error)
	GetChannel(ctx context.Context, channelID uuid.UUID, caller models.Identity) (*models.Channel, error)
	// Membership devolve o tipo do canal se identity participa dele
	Membership(ctx context.Context, channelID uuid.UUID, identity models.Identity) (models.ChannelKind, error)
	// MarkRead grava max(atual, at) e devolve a marca efetiva
	MarkRead(ctx context.Context, channelID uuid.UUID, identity models.Identity, at time.Time) (time.Time, error)
	SetParticipantKey(ctx context.Context, channelID uuid.UUID, identity models.Identity, publicKey, keyBackup []byte) error
}

// Store é uma interface agregada para todas as operações de store
// Facilita a injeção de dependência
type Store interface {
	UserStore
	ChallengeStore
	ChannelStore
}
