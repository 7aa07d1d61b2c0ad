package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type wallet struct {
	priv     ed25519.PrivateKey
	identity models.Identity
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return wallet{priv: priv, identity: auth.AddressFromPublicKey(pub)}
}

func (w wallet) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := auth.SignWithEd25519(w.priv, message)
	require.NoError(t, err)
	return sig
}

type fixture struct {
	store    *repository.InMemoryStore
	tokens   *auth.TokenService
	auth     *AuthService
	guard    *Guard
	channels *ChannelService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewInMemoryStore()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	verifier, err := auth.NewSignatureVerifier("ed25519")
	require.NoError(t, err)

	guard := NewGuard(tokens, store, time.Second, nil)
	return &fixture{
		store:    store,
		tokens:   tokens,
		auth:     NewAuthService(store, tokens, verifier, AuthOptions{ChallengeTTL: time.Minute, LookupTimeout: time.Second}),
		guard:    guard,
		channels: NewChannelService(store, guard, ChannelOptions{MaxGroupSize: 4, LookupTimeout: time.Second}),
	}
}

// login faz o ciclo desafio/assinatura completo
func (f *fixture) login(t *testing.T, w wallet) auth.SessionCredential {
	t.Helper()
	c, err := f.auth.IssueChallenge(context.Background(), w.identity.String())
	require.NoError(t, err)
	cred, err := f.auth.VerifyAndIssueSession(context.Background(), w.identity.String(), c.ID.String(), w.sign(t, c.Message))
	require.NoError(t, err)
	return cred
}

// slowStore bloqueia as consultas até o contexto acabar
type slowStore struct {
	*repository.InMemoryStore
}

func (s slowStore) GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s slowStore) Membership(ctx context.Context, id uuid.UUID, identity models.Identity) (models.ChannelKind, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s slowStore) ListChannelsFor(ctx context.Context, identity models.Identity) ([]models.ChannelSummary, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stalledWrites trava as escritas de canal até o contexto acabar
type stalledWrites struct {
	*repository.InMemoryStore
}

func (s stalledWrites) CreateDirect(ctx context.Context, _, _ models.Identity, _ []byte, _ time.Time) (*models.Channel, bool, error) {
	<-ctx.Done()
	return nil, false, ctx.Err()
}

func (s stalledWrites) CreateGroup(ctx context.Context, _ models.Identity, _ string, _ []models.Identity, _ time.Time) (*models.Channel, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s stalledWrites) CreateImported(ctx context.Context, _ models.Identity, _, _ string, _ time.Time) (*models.Channel, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s stalledWrites) SetParticipantKey(ctx context.Context, _ uuid.UUID, _ models.Identity, _, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

type mockProofVerifier struct {
	mock.Mock
}

func (m *mockProofVerifier) VerifyProof(identity models.Identity, proof auth.Proof) error {
	return m.Called(identity, proof).Error(0)
}
