package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"zeroep-backend/internal/auth"
	"zeroep-backend/internal/models"
	"zeroep-backend/internal/repository"
	"zeroep-backend/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *repository.InMemoryStore
	tokens *auth.TokenService
	hub    *Hub
	proto  *Protocol
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewInMemoryStore()
	tokens, err := auth.NewTokenService("realtime-secret", time.Hour)
	require.NoError(t, err)

	guard := service.NewGuard(tokens, store, time.Second, nil)
	hub := NewHub(nil)
	return &fixture{
		store:  store,
		tokens: tokens,
		hub:    hub,
		proto:  NewProtocol(guard, store, hub, Options{StoreTimeout: time.Second}),
	}
}

// user registra a identidade e devolve uma credencial de sessão
func (f *fixture) user(t *testing.T, name string) (models.Identity, string) {
	t.Helper()
	id := models.Identity("0x" + name)
	_, err := f.store.EnsureUser(context.Background(), id, service.Now())
	require.NoError(t, err)
	cred, err := f.tokens.NewToken(id)
	require.NoError(t, err)
	return id, cred.Token
}

func (f *fixture) direct(t *testing.T, a, b models.Identity) uuid.UUID {
	t.Helper()
	ch, _, err := f.store.CreateDirect(context.Background(), a, b, nil, service.Now())
	require.NoError(t, err)
	return ch.ID
}

func emit(t *testing.T, p *Protocol, peer *Peer, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	p.Handle(context.Background(), peer, frame)
}

// drain lê tudo que está na fila do peer sem bloquear
func drain(t *testing.T, peer *Peer) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case raw := <-peer.Out():
			var env Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

// only exige exatamente um frame na fila e o decodifica em v
func only(t *testing.T, peer *Peer, event string, v interface{}) {
	t.Helper()
	frames := drain(t, peer)
	require.Len(t, frames, 1, "frames: %+v", frames)
	require.Equal(t, event, frames[0].Event)
	require.NoError(t, json.Unmarshal(frames[0].Data, v))
}
