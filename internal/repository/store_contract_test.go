package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// now devolve um instante que o Postgres guarda sem perda
func now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func newMessage(ch uuid.UUID, sender models.Identity, text string, at time.Time) models.Message {
	return models.Message{ID: uuid.New(), ChannelID: ch, Sender: sender, Ciphertext: text, SentAt: at}
}

// runStoreContract exercita qualquer implementação de Store com o mesmo conjunto de casos
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetUser(ctx, "0xa")
		assert.ErrorIs(t, err, apperr.ErrUserNotFound)
		assert.ErrorIs(t, s.SetVerified(ctx, "0xa", true), apperr.ErrUserNotFound)

		u, err := s.EnsureUser(ctx, "0xa", now())
		require.NoError(t, err)
		assert.False(t, u.Verified)

		require.NoError(t, s.SetVerified(ctx, "0xa", true))
		u, err = s.EnsureUser(ctx, "0xa", now())
		require.NoError(t, err)
		assert.True(t, u.Verified, "EnsureUser must not reset an existing record")
	})

	t.Run("challenge single use", func(t *testing.T) {
		s := newStore(t)
		issued := now()
		c := &models.Challenge{
			ID:        uuid.New(),
			Identity:  "0xa",
			Nonce:     "n",
			Message:   "m",
			IssuedAt:  issued,
			ExpiresAt: issued.Add(time.Minute),
		}
		require.NoError(t, s.CreateChallenge(ctx, c))

		got, err := s.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ChallengeIssued, got.State(issued))
		assert.Equal(t, "m", got.Message)

		require.NoError(t, s.ConsumeChallenge(ctx, c.ID, issued.Add(time.Second)))
		assert.ErrorIs(t, s.ConsumeChallenge(ctx, c.ID, issued.Add(2*time.Second)), ErrChallengeSpent)

		got, err = s.GetChallenge(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ChallengeConsumed, got.State(issued))

		_, err = s.GetChallenge(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("expired challenge cannot be consumed", func(t *testing.T) {
		s := newStore(t)
		issued := now()
		c := &models.Challenge{ID: uuid.New(), Identity: "0xa", Nonce: "n", Message: "m", IssuedAt: issued, ExpiresAt: issued.Add(time.Minute)}
		require.NoError(t, s.CreateChallenge(ctx, c))

		assert.ErrorIs(t, s.ConsumeChallenge(ctx, c.ID, issued.Add(time.Minute)), ErrChallengeSpent)
	})

	t.Run("direct channel is idempotent per pair", func(t *testing.T) {
		s := newStore(t)

		first, created, err := s.CreateDirect(ctx, "0xa", "0xb", []byte{4, 1}, now())
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.KindDirect, first.Kind)
		require.Len(t, first.Participants, 2)
		assert.Equal(t, models.Identity("0xa"), first.Participants[0].Identity)
		assert.True(t, first.Participants[0].IsCreator)
		assert.Equal(t, []byte{4, 1}, first.Participants[0].PublicKey)

		again, created, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)

		reversed, created, err := s.CreateDirect(ctx, "0xb", "0xa", []byte{4, 2}, now())
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, reversed.ID)
		assert.Equal(t, []byte{4, 2}, reversed.Participant("0xb").PublicKey)

		list, err := s.ListChannelsFor(ctx, "0xa")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("concurrent direct creation yields one channel", func(t *testing.T) {
		s := newStore(t)

		const n = 16
		var wg sync.WaitGroup
		ids := make([]uuid.UUID, n)
		createdCount := make([]bool, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := models.Identity("0xa"), models.Identity("0xb")
				if i%2 == 1 {
					a, b = b, a
				}
				ch, created, err := s.CreateDirect(ctx, a, b, nil, now())
				errs[i] = err
				if err == nil {
					ids[i] = ch.ID
					createdCount[i] = created
				}
			}(i)
		}
		wg.Wait()

		winners := 0
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
			if createdCount[i] {
				winners++
			}
		}
		assert.Equal(t, 1, winners)
	})

	t.Run("append assigns sequence and checks membership", func(t *testing.T) {
		s := newStore(t)
		ch, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)

		base := now()
		for i := 1; i <= 3; i++ {
			m, err := s.AppendMessage(ctx, newMessage(ch.ID, "0xa", fmt.Sprintf("x%d", i), base.Add(time.Duration(i)*time.Millisecond)))
			require.NoError(t, err)
			assert.Equal(t, int64(i), m.Seq)
		}

		_, err = s.AppendMessage(ctx, newMessage(ch.ID, "0xc", "intruder", now()))
		assert.ErrorIs(t, err, apperr.ErrNotAMember)

		_, err = s.AppendMessage(ctx, newMessage(uuid.New(), "0xa", "nowhere", now()))
		assert.ErrorIs(t, err, apperr.ErrChannelNotFound)

		full, err := s.GetChannel(ctx, ch.ID, "0xb")
		require.NoError(t, err)
		require.Len(t, full.Messages, 3)
		assert.Equal(t, []string{"x1", "x2", "x3"}, []string{full.Messages[0].Ciphertext, full.Messages[1].Ciphertext, full.Messages[2].Ciphertext})
	})

	t.Run("append with a known id returns the stored message", func(t *testing.T) {
		s := newStore(t)
		ch, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)

		msg := newMessage(ch.ID, "0xa", "once", now())
		first, err := s.AppendMessage(ctx, msg)
		require.NoError(t, err)
		retry, err := s.AppendMessage(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, first.Seq, retry.Seq)

		found, err := s.FindMessage(ctx, ch.ID, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "once", found.Ciphertext)

		_, err = s.FindMessage(ctx, ch.ID, uuid.New())
		assert.ErrorIs(t, err, ErrMessageNotFound)

		full, err := s.GetChannel(ctx, ch.ID, "0xa")
		require.NoError(t, err)
		assert.Len(t, full.Messages, 1)
	})

	t.Run("concurrent appends keep a gapless sequence", func(t *testing.T) {
		s := newStore(t)
		ch, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)

		const n = 40
		var wg sync.WaitGroup
		seqs := make(chan int64, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sender := models.Identity("0xa")
				if i%2 == 0 {
					sender = "0xb"
				}
				m, err := s.AppendMessage(ctx, newMessage(ch.ID, sender, "m", now()))
				if assert.NoError(t, err) {
					seqs <- m.Seq
				}
			}(i)
		}
		wg.Wait()
		close(seqs)

		seen := make(map[int64]bool)
		for seq := range seqs {
			assert.False(t, seen[seq], "seq %d assigned twice", seq)
			seen[seq] = true
		}
		for i := int64(1); i <= n; i++ {
			assert.True(t, seen[i], "seq %d missing", i)
		}
	})

	t.Run("read marks never regress", func(t *testing.T) {
		s := newStore(t)
		ch, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)

		later := now()
		earlier := later.Add(-time.Hour)

		mark, err := s.MarkRead(ctx, ch.ID, "0xb", later)
		require.NoError(t, err)
		assert.WithinDuration(t, later, mark, 0)

		mark, err = s.MarkRead(ctx, ch.ID, "0xb", earlier)
		require.NoError(t, err)
		assert.WithinDuration(t, later, mark, 0)

		full, err := s.GetChannel(ctx, ch.ID, "0xb")
		require.NoError(t, err)
		assert.WithinDuration(t, later, full.ReadMarks["0xb"], 0)

		_, err = s.MarkRead(ctx, ch.ID, "0xc", later)
		assert.ErrorIs(t, err, apperr.ErrNotAMember)
		_, err = s.MarkRead(ctx, uuid.New(), "0xb", later)
		assert.ErrorIs(t, err, apperr.ErrChannelNotFound)
	})

	t.Run("list orders by activity and counts unread", func(t *testing.T) {
		s := newStore(t)
		base := now().Add(-time.Hour)

		older, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, base)
		require.NoError(t, err)
		newer, _, err := s.CreateDirect(ctx, "0xa", "0xc", nil, base.Add(time.Minute))
		require.NoError(t, err)

		list, err := s.ListChannelsFor(ctx, "0xa")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Nil(t, list[0].LastMessage)
		assert.Equal(t, "0xc", list[0].Title)

		_, err = s.AppendMessage(ctx, newMessage(older.ID, "0xb", "hi", base.Add(2*time.Minute)))
		require.NoError(t, err)
		_, err = s.AppendMessage(ctx, newMessage(older.ID, "0xa", "mine", base.Add(3*time.Minute)))
		require.NoError(t, err)

		list, err = s.ListChannelsFor(ctx, "0xa")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, older.ID, list[0].ID)
		require.NotNil(t, list[0].LastMessage)
		assert.Equal(t, "mine", list[0].LastMessage.Ciphertext)
		assert.Equal(t, int64(2), list[0].LastMessage.Seq)
		assert.Equal(t, 1, list[0].Unread)
		assert.Equal(t, "0xb", list[0].Title)

		_, err = s.MarkRead(ctx, older.ID, "0xa", base.Add(4*time.Minute))
		require.NoError(t, err)
		list, err = s.ListChannelsFor(ctx, "0xa")
		require.NoError(t, err)
		assert.Equal(t, 0, list[0].Unread)

		empty, err := s.ListChannelsFor(ctx, "0xz")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("get channel and membership", func(t *testing.T) {
		s := newStore(t)
		ch, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)

		_, err = s.GetChannel(ctx, ch.ID, "0xc")
		assert.ErrorIs(t, err, apperr.ErrNotAMember)
		_, err = s.GetChannel(ctx, uuid.New(), "0xa")
		assert.ErrorIs(t, err, apperr.ErrChannelNotFound)

		kind, err := s.Membership(ctx, ch.ID, "0xb")
		require.NoError(t, err)
		assert.Equal(t, models.KindDirect, kind)
		_, err = s.Membership(ctx, ch.ID, "0xc")
		assert.ErrorIs(t, err, apperr.ErrNotAMember)
		_, err = s.Membership(ctx, uuid.New(), "0xb")
		assert.ErrorIs(t, err, apperr.ErrChannelNotFound)
	})

	t.Run("group deduplicates members", func(t *testing.T) {
		s := newStore(t)
		ch, err := s.CreateGroup(ctx, "0xa", "friends", []models.Identity{"0xb", "0xc", "0xb", "0xa"}, now())
		require.NoError(t, err)

		assert.Equal(t, models.KindGroup, ch.Kind)
		assert.Equal(t, "friends", ch.Name)
		require.Len(t, ch.Participants, 3)
		assert.Equal(t, models.Identity("0xa"), ch.Participants[0].Identity)
		assert.True(t, ch.Participants[0].IsCreator)
		assert.False(t, ch.Participants[1].IsCreator)
	})

	t.Run("import is idempotent by provenance", func(t *testing.T) {
		s := newStore(t)
		first, err := s.CreateImported(ctx, "0xa", "guild:42", "guild", now())
		require.NoError(t, err)
		assert.Equal(t, models.KindImported, first.Kind)
		assert.Equal(t, "guild:42", first.Provenance)

		second, err := s.CreateImported(ctx, "0xb", "guild:42", "ignored", now())
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		require.Len(t, second.Participants, 2)
		assert.True(t, second.Participant("0xa").IsCreator)
		assert.False(t, second.Participant("0xb").IsCreator)

		again, err := s.CreateImported(ctx, "0xb", "guild:42", "", now())
		require.NoError(t, err)
		assert.Len(t, again.Participants, 2)
	})

	t.Run("participant key material", func(t *testing.T) {
		s := newStore(t)
		ch, _, err := s.CreateDirect(ctx, "0xa", "0xb", nil, now())
		require.NoError(t, err)

		require.NoError(t, s.SetParticipantKey(ctx, ch.ID, "0xb", []byte{4, 9}, []byte("sealed")))
		full, err := s.GetChannel(ctx, ch.ID, "0xa")
		require.NoError(t, err)
		assert.Equal(t, []byte{4, 9}, full.Participant("0xb").PublicKey)
		assert.Equal(t, []byte("sealed"), full.Participant("0xb").KeyBackup)

		assert.ErrorIs(t, s.SetParticipantKey(ctx, ch.ID, "0xc", []byte{4}, nil), apperr.ErrNotAMember)
		assert.ErrorIs(t, s.SetParticipantKey(ctx, uuid.New(), "0xa", []byte{4}, nil), apperr.ErrChannelNotFound)
	})
}
