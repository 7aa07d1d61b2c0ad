package service

import (
	"context"
	"testing"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_AuthorizeMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := newWallet(t), newWallet(t)
	credA := f.login(t, alice)
	f.login(t, bob)

	ch, err := f.channels.CreateDirect(ctx, alice.identity, bob.identity.String(), nil)
	require.NoError(t, err)

	for _, action := range []Action{ActionJoin, ActionSend, ActionRead, ActionView} {
		grant, err := f.guard.Authorize(ctx, credA.Token, ch.ID.String(), action)
		require.NoError(t, err, action)
		assert.Equal(t, alice.identity, grant.Identity)
		assert.Equal(t, ch.ID, grant.ChannelID)
		assert.Equal(t, models.KindDirect, grant.Kind)
	}
}

func TestGuard_UnauthenticatedIsCheckedFirst(t *testing.T) {
	f := newFixture(t)

	for _, cred := range []string{"", "garbage"} {
		_, err := f.guard.Authorize(context.Background(), cred, uuid.NewString(), ActionJoin)
		assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
		assert.Equal(t, "Please log in.", apperr.Message(err))
	}
}

func TestGuard_DenialIsUniform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, eve := newWallet(t), newWallet(t), newWallet(t)
	f.login(t, alice)
	f.login(t, bob)
	credE := f.login(t, eve)

	ch, err := f.channels.CreateDirect(ctx, alice.identity, bob.identity.String(), nil)
	require.NoError(t, err)

	var messages []string
	for _, target := range []string{ch.ID.String(), uuid.NewString(), "not-a-uuid"} {
		for _, action := range []Action{ActionJoin, ActionSend, ActionRead} {
			_, err := f.guard.Authorize(ctx, credE.Token, target, action)
			require.ErrorIs(t, err, apperr.ErrDenied)
			messages = append(messages, err.Error())
		}
	}
	for _, m := range messages {
		assert.Equal(t, "You're not a participant of this channel!", m)
	}
}

func TestGuard_ImportedChannelsRejectReadReceipts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := newWallet(t)
	cred := f.login(t, alice)

	ch, err := f.channels.Import(ctx, alice.identity, "guild:1", "guild")
	require.NoError(t, err)

	_, err = f.guard.Authorize(ctx, cred.Token, ch.ID.String(), ActionRead)
	assert.ErrorIs(t, err, apperr.ErrReadReceiptsDisabled)

	_, err = f.guard.Authorize(ctx, cred.Token, ch.ID.String(), ActionJoin)
	assert.NoError(t, err)
}

func TestGuard_SlowMembershipIsUnavailable(t *testing.T) {
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	g := NewGuard(tokens, slowStore{repository.NewInMemoryStore()}, 20*time.Millisecond, nil)

	cred, err := tokens.NewToken("0xabc")
	require.NoError(t, err)

	_, err = g.Authorize(context.Background(), cred.Token, uuid.NewString(), ActionJoin)
	assert.Equal(t, apperr.CodeUnavailable, apperr.CodeOf(err))
}
