package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
	"unicode"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/metrics"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultChallengeTTL = 5 * time.Minute
	nonceSize           = 32
	maxIdentityLength   = 128
)

// AuthStore é o que o AuthService precisa do repositório
type AuthStore interface {
	repository.UserStore
	repository.ChallengeStore
}

// AuthOptions agrupa as dependências opcionais do AuthService
type AuthOptions struct {
	ChallengeTTL  time.Duration
	LookupTimeout time.Duration
	Proofs        auth.ProofVerifier
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
}

// AuthService lida com desafio/resposta de carteira e emissão de sessão
type AuthService struct {
	store        AuthStore
	tokens       *auth.TokenService
	verifier     auth.SignatureVerifier
	proofs       auth.ProofVerifier
	challengeTTL time.Duration
	lookup       lookup
	log          *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewAuthService cria um novo serviço de autenticação
func NewAuthService(store AuthStore, tokens *auth.TokenService, verifier auth.SignatureVerifier, opts AuthOptions) *AuthService {
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = defaultChallengeTTL
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &AuthService{
		store:        store,
		tokens:       tokens,
		verifier:     verifier,
		proofs:       opts.Proofs,
		challengeTTL: opts.ChallengeTTL,
		lookup:       newLookup(opts.LookupTimeout, opts.Metrics),
		log:          opts.Logger,
		metrics:      opts.Metrics,
		now:          Now,
	}
}

// ParseIdentity normaliza e valida um endereço vindo do cliente
func ParseIdentity(raw string) (models.Identity, error) {
	id := models.NormalizeIdentity(raw)
	if id == "" || len(id) > maxIdentityLength {
		return "", apperr.ErrInvalidIdentity
	}
	for _, r := range id {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) || r == '|' {
			return "", apperr.ErrInvalidIdentity
		}
	}
	return id, nil
}

// IssueChallenge cria um nonce de uso único ligado à identidade
func (s *AuthService) IssueChallenge(ctx context.Context, rawIdentity string) (*models.Challenge, error) {
	identity, err := ParseIdentity(rawIdentity)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		s.log.Errorw("fonte de aleatoriedade indisponível", "error", err)
		return nil, apperr.ErrEntropy
	}

	now := s.now()
	c := &models.Challenge{
		ID:        uuid.New(),
		Identity:  identity,
		Nonce:     hex.EncodeToString(nonce),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.challengeTTL),
	}
	c.Message = models.ChallengeMessage(identity, c.Nonce, c.ExpiresAt)

	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()
	if err := s.store.CreateChallenge(ctx, c); err != nil {
		return nil, s.lookup.fail(err)
	}
	return c, nil
}

// VerifyAndIssueSession confere desafio e assinatura e emite uma credencial nova.
// O desafio só é consumido depois que a assinatura confere.
func (s *AuthService) VerifyAndIssueSession(ctx context.Context, rawIdentity, challengeID, signature string) (auth.SessionCredential, error) {
	cred, err := s.verifyAndIssue(ctx, rawIdentity, challengeID, signature)
	switch {
	case err == nil:
		s.metrics.AuthAttempt("ok")
		s.log.Infow("sessão emitida", "identity", cred.Identity)
	case apperr.CodeOf(err) == apperr.CodeUnavailable:
		s.metrics.AuthAttempt("unavailable")
		s.log.Warnw("verificação de login indisponível", "error", err)
	default:
		s.metrics.AuthAttempt("rejected")
		s.log.Infow("login rejeitado", "reason", apperr.Message(err))
	}
	return cred, err
}

func (s *AuthService) verifyAndIssue(ctx context.Context, rawIdentity, challengeID, signature string) (auth.SessionCredential, error) {
	var none auth.SessionCredential

	identity, err := ParseIdentity(rawIdentity)
	if err != nil {
		return none, apperr.ErrChallengeInvalid
	}
	id, err := uuid.Parse(challengeID)
	if err != nil {
		return none, apperr.ErrChallengeInvalid
	}

	// 1. Buscar o desafio (com prazo)
	lctx, cancel := s.lookup.ctx(ctx)
	c, err := s.store.GetChallenge(lctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return none, apperr.ErrChallengeInvalid
		}
		return none, s.lookup.fail(err)
	}

	// 2. Ligação à identidade e estado
	now := s.now()
	if c.Identity != identity || c.State(now) != models.ChallengeIssued {
		return none, apperr.ErrChallengeInvalid
	}

	// 3. Assinatura sobre a mensagem exata do desafio
	if err := s.verifier.Verify(identity, c.Message, signature); err != nil {
		return none, apperr.ErrInvalidSignature
	}

	// 4. Consumir: só um verificador concorrente vence
	lctx, cancel = s.lookup.ctx(ctx)
	err = s.store.ConsumeChallenge(lctx, id, now)
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrChallengeSpent) || errors.Is(err, repository.ErrChallengeNotFound) {
			return none, apperr.ErrChallengeInvalid
		}
		return none, s.lookup.fail(err)
	}

	// 5. Registrar a identidade na primeira sessão
	lctx, cancel = s.lookup.ctx(ctx)
	_, err = s.store.EnsureUser(lctx, identity, now)
	cancel()
	if err != nil {
		return none, s.lookup.fail(err)
	}

	// 6. Emitir a credencial
	cred, err := s.tokens.NewToken(identity)
	if err != nil {
		s.log.Errorw("falha ao assinar credencial", "error", err)
		return none, apperr.Internal("could not issue a session")
	}
	return cred, nil
}

// Me devolve o registro da identidade autenticada
func (s *AuthService) Me(ctx context.Context, identity models.Identity) (*models.User, error) {
	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	u, err := s.store.GetUser(ctx, identity)
	if err != nil {
		return nil, s.lookup.fail(err)
	}
	return u, nil
}

func (s *AuthService) UserExists(ctx context.Context, rawIdentity string) (bool, error) {
	identity, err := ParseIdentity(rawIdentity)
	if err != nil {
		return false, err
	}

	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	_, err = s.store.GetUser(ctx, identity)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrUserNotFound):
		return false, nil
	default:
		return false, s.lookup.fail(err)
	}
}

// VerifyProof repassa a atestação ao verificador externo e marca a identidade como verificada
func (s *AuthService) VerifyProof(ctx context.Context, identity models.Identity, proof auth.Proof) (*models.User, error) {
	if s.proofs == nil {
		return nil, apperr.ErrProofsDisabled
	}
	if err := s.proofs.VerifyProof(identity, proof); err != nil {
		s.log.Infow("prova de identidade rejeitada", "identity", identity)
		return nil, apperr.ErrProofRejected
	}

	ctx, cancel := s.lookup.ctx(ctx)
	defer cancel()

	if err := s.store.SetVerified(ctx, identity, true); err != nil {
		return nil, s.lookup.fail(err)
	}
	u, err := s.store.GetUser(ctx, identity)
	if err != nil {
		return nil, s.lookup.fail(err)
	}
	s.log.Infow("identidade verificada", "identity", identity)
	return u, nil
}
