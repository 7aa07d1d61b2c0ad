package service

import (
	"context"
	"errors"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/metrics"
	"zeroep-backend/internal/models"

	"github.com/google/uuid"
)

// Action é o que o chamador quer fazer no canal
type Action string

const (
	ActionJoin Action = "join"
	ActionSend Action = "send"
	ActionRead Action = "read"
	ActionView Action = "view"
	ActionKey  Action = "key"
)

// MembershipStore é a única consulta que o Guard faz ao repositório
type MembershipStore interface {
	Membership(ctx context.Context, channelID uuid.UUID, identity models.Identity) (models.ChannelKind, error)
}

// Grant é o resultado de uma autorização bem-sucedida
type Grant struct {
	Identity  models.Identity
	ChannelID uuid.UUID
	Kind      models.ChannelKind
}

// Guard é o ponto único de decisão de acesso a canais
type Guard struct {
	tokens  *auth.TokenService
	members MembershipStore
	lookup  lookup
}

// NewGuard cria o guard de membros
func NewGuard(tokens *auth.TokenService, members MembershipStore, lookupTimeout time.Duration, m *metrics.Metrics) *Guard {
	return &Guard{
		tokens:  tokens,
		members: members,
		lookup:  newLookup(lookupTimeout, m),
	}
}

// Authenticate resolve a credencial em uma Identity
func (g *Guard) Authenticate(ctx context.Context, credential string) (models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return "", g.lookup.fail(err)
	}
	identity, err := g.tokens.ValidateToken(credential)
	if err != nil {
		return "", apperr.ErrUnauthenticated
	}
	return identity, nil
}

// Authorize checa credencial e depois participação. Canal inexistente e
// não-membro produzem o mesmo ErrDenied.
func (g *Guard) Authorize(ctx context.Context, credential, channelID string, action Action) (Grant, error) {
	identity, err := g.Authenticate(ctx, credential)
	if err != nil {
		return Grant{}, err
	}
	return g.AuthorizeIdentity(ctx, identity, channelID, action)
}

// AuthorizeIdentity é Authorize para quem já autenticou (HTTP, conexão com token)
func (g *Guard) AuthorizeIdentity(ctx context.Context, identity models.Identity, channelID string, action Action) (Grant, error) {
	id, err := uuid.Parse(channelID)
	if err != nil {
		return Grant{}, apperr.ErrDenied
	}

	lctx, cancel := g.lookup.ctx(ctx)
	kind, err := g.members.Membership(lctx, id, identity)
	cancel()
	if err != nil {
		if errors.Is(err, apperr.ErrChannelNotFound) || errors.Is(err, apperr.ErrNotAMember) {
			return Grant{}, apperr.ErrDenied
		}
		return Grant{}, g.lookup.fail(err)
	}

	if action == ActionRead && kind == models.KindImported {
		return Grant{}, apperr.ErrReadReceiptsDisabled
	}
	return Grant{Identity: identity, ChannelID: id, Kind: kind}, nil
}
