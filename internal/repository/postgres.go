package repository

import (
	"context"
	"time"

	"zeroep-backend/internal/apperr"
	"zeroep-backend/internal/logger"
	"zeroep-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// PostgresStore é a implementação da interface Store para o PostgreSQL
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresStore cria uma nova instância do PostgresStore e pool de conexões
func NewPostgresStore(ctx context.Context, databaseURL string, log *logger.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "não foi possível criar pool de conexão")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "não foi possível pingar o banco de dados")
	}

	log.Infow("pool de conexão com PostgreSQL estabelecido")
	return &PostgresStore{db: pool, log: log}, nil
}

// Close fecha o pool de conexões
func (s *PostgresStore) Close() {
	s.db.Close()
}

// RunMigrations executa o script SQL de migração
func (s *PostgresStore) RunMigrations(ctx context.Context, migrationSQL string) error {
	if _, err := s.db.Exec(ctx, migrationSQL); err != nil {
		return errors.Wrap(err, "falha ao executar migração")
	}
	return nil
}

// unavailable marca falhas do driver como transitórias
func unavailable(err error, op string) error {
	return apperr.Unavailable(errors.Wrap(err, op))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- UserStore ---

func (s *PostgresStore) EnsureUser(ctx context.Context, identity models.Identity, at time.Time) (*models.User, error) {
	sql := `
        INSERT INTO users (identity, verified, created_at)
        VALUES ($1, FALSE, $2)
        ON CONFLICT (identity) DO NOTHING`

	if _, err := s.db.Exec(ctx, sql, identity, at); err != nil {
		return nil, unavailable(err, "repo.EnsureUser.Insert: ")
	}
	return s.GetUser(ctx, identity)
}

func (s *PostgresStore) GetUser(ctx context.Context, identity models.Identity) (*models.User, error) {
	sql := `SELECT identity, verified, created_at FROM users WHERE identity = $1`

	user := &models.User{}
	err := s.db.QueryRow(ctx, sql, identity).Scan(&user.Identity, &user.Verified, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, unavailable(err, "repo.GetUser.Scan: ")
	}
	return user, nil
}

func (s *PostgresStore) SetVerified(ctx context.Context, identity models.Identity, verified bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET verified = $2 WHERE identity = $1`, identity, verified)
	if err != nil {
		return unavailable(err, "repo.SetVerified.Update: ")
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrUserNotFound
	}
	return nil
}

// --- ChallengeStore ---

func (s *PostgresStore) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	sql := `
        INSERT INTO login_challenges (id, identity, nonce, message, issued_at, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, sql, c.ID, c.Identity, c.Nonce, c.Message, c.IssuedAt, c.ExpiresAt)
	if err != nil {
		return unavailable(err, "repo.CreateChallenge.Insert: ")
	}
	return nil
}

func (s *PostgresStore) GetChallenge(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	sql := `
        SELECT id, identity, nonce, message, issued_at, expires_at, consumed_at
        FROM login_challenges
        WHERE id = $1`

	c := &models.Challenge{}
	err := s.db.QueryRow(ctx, sql, id).Scan(
		&c.ID,
		&c.Identity,
		&c.Nonce,
		&c.Message,
		&c.IssuedAt,
		&c.ExpiresAt,
		&c.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChallengeNotFound
		}
		return nil, unavailable(err, "repo.GetChallenge.Scan: ")
	}
	return c, nil
}

func (s *PostgresStore) ConsumeChallenge(ctx context.Context, id uuid.UUID, at time.Time) error {
	sql := `
        UPDATE login_challenges SET consumed_at = $2
        WHERE id = $1 AND consumed_at IS NULL AND expires_at > $2`

	tag, err := s.db.Exec(ctx, sql, id, at)
	if err != nil {
		return unavailable(err, "repo.ConsumeChallenge.Update: ")
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeSpent
	}
	return nil
}

// --- ChannelStore ---

func (s *PostgresStore) CreateDirect(ctx context.Context, initiator, recipient models.Identity, initiatorKey []byte, at time.Time) (*models.Channel, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, unavailable(err, "repo.CreateDirect.Begin: ")
	}
	defer tx.Rollback(ctx)

	key := models.DirectKey(initiator, recipient)
	id := uuid.New()
	created := true

	// Inserção condicional pela chave canônica do par; quem perde a corrida lê o vencedor
	err = tx.QueryRow(ctx, `
        INSERT INTO channels (id, kind, direct_key, created_at)
        VALUES ($1, 'direct', $2, $3)
        ON CONFLICT (direct_key) DO NOTHING
        RETURNING id`, id, key, at).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		created = false
		if err := tx.QueryRow(ctx, `SELECT id FROM channels WHERE direct_key = $1`, key).Scan(&id); err != nil {
			return nil, false, unavailable(err, "repo.CreateDirect.SelectExisting: ")
		}
	case err != nil:
		return nil, false, unavailable(err, "repo.CreateDirect.Insert: ")
	default:
		_, err = tx.Exec(ctx, `
            INSERT INTO channel_participants (channel_id, identity, ordinal, joined_at, public_key, is_creator)
            VALUES ($1, $2, 0, $4, $5, TRUE), ($1, $3, 1, $4, NULL, FALSE)`,
			id, initiator, recipient, at, nullBytes(initiatorKey))
		if err != nil {
			return nil, false, unavailable(err, "repo.CreateDirect.InsertParticipants: ")
		}
	}

	if !created && len(initiatorKey) > 0 {
		_, err = tx.Exec(ctx, `
            UPDATE channel_participants SET public_key = $3
            WHERE channel_id = $1 AND identity = $2 AND public_key IS NULL`, id, initiator, initiatorKey)
		if err != nil {
			return nil, false, unavailable(err, "repo.CreateDirect.UpdateKey: ")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, unavailable(err, "repo.CreateDirect.Commit: ")
	}

	ch, err := s.GetChannel(ctx, id, initiator)
	return ch, created, err
}

func (s *PostgresStore) CreateGroup(ctx context.Context, creator models.Identity, name string, members []models.Identity, at time.Time) (*models.Channel, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable(err, "repo.CreateGroup.Begin: ")
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	_, err = tx.Exec(ctx, `INSERT INTO channels (id, kind, name, created_at) VALUES ($1, 'group', $2, $3)`, id, name, at)
	if err != nil {
		return nil, unavailable(err, "repo.CreateGroup.Insert: ")
	}

	all := append([]models.Identity{creator}, members...)
	seen := make(map[models.Identity]bool, len(all))
	batch := &pgx.Batch{}
	ordinal := 0
	for _, m := range all {
		if seen[m] {
			continue
		}
		seen[m] = true
		batch.Queue(`
            INSERT INTO channel_participants (channel_id, identity, ordinal, joined_at, is_creator)
            VALUES ($1, $2, $3, $4, $5)`, id, m, ordinal, at, m == creator)
		ordinal++
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, unavailable(err, "repo.CreateGroup.InsertParticipants: ")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err, "repo.CreateGroup.Commit: ")
	}
	return s.GetChannel(ctx, id, creator)
}

func (s *PostgresStore) CreateImported(ctx context.Context, caller models.Identity, provenance, name string, at time.Time) (*models.Channel, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable(err, "repo.CreateImported.Begin: ")
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	created := true
	err = tx.QueryRow(ctx, `
        INSERT INTO channels (id, kind, name, provenance, created_at)
        VALUES ($1, 'imported', $2, $3, $4)
        ON CONFLICT (provenance) DO NOTHING
        RETURNING id`, id, name, provenance, at).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		created = false
		err = tx.QueryRow(ctx, `SELECT id FROM channels WHERE provenance = $1`, provenance).Scan(&id)
	}
	if err != nil {
		return nil, unavailable(err, "repo.CreateImported.Upsert: ")
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO channel_participants (channel_id, identity, ordinal, joined_at, is_creator)
        SELECT $1, $2, COALESCE(MAX(ordinal) + 1, 0), $3, $4
        FROM channel_participants WHERE channel_id = $1
        ON CONFLICT (channel_id, identity) DO NOTHING`, id, caller, at, created)
	if err != nil {
		return nil, unavailable(err, "repo.CreateImported.InsertParticipant: ")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err, "repo.CreateImported.Commit: ")
	}
	return s.GetChannel(ctx, id, caller)
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, unavailable(err, "repo.AppendMessage.Begin: ")
	}
	defer tx.Rollback(ctx)

	// O UPDATE trava a linha do canal: appends do mesmo canal ficam em série
	err = tx.QueryRow(ctx, `UPDATE channels SET last_seq = last_seq + 1 WHERE id = $1 RETURNING last_seq`, msg.ChannelID).Scan(&msg.Seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrChannelNotFound
		}
		return nil, unavailable(err, "repo.AppendMessage.NextSeq: ")
	}

	var member bool
	err = tx.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM channel_participants WHERE channel_id = $1 AND identity = $2)`,
		msg.ChannelID, msg.Sender).Scan(&member)
	if err != nil {
		return nil, unavailable(err, "repo.AppendMessage.Membership: ")
	}
	if !member {
		return nil, apperr.ErrNotAMember
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO messages (id, channel_id, seq, sender, ciphertext, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChannelID, msg.Seq, msg.Sender, msg.Ciphertext, msg.SentAt)
	if err != nil {
		if isUniqueViolation(err) {
			// Mesmo ID já gravado (retentativa): devolve o que está no log
			tx.Rollback(ctx)
			return s.FindMessage(ctx, msg.ChannelID, msg.ID)
		}
		return nil, unavailable(err, "repo.AppendMessage.Insert: ")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable(err, "repo.AppendMessage.Commit: ")
	}
	return &msg, nil
}

func (s *PostgresStore) FindMessage(ctx context.Context, channelID, messageID uuid.UUID) (*models.Message, error) {
	sql := `
        SELECT id, channel_id, seq, sender, ciphertext, sent_at
        FROM messages
        WHERE channel_id = $1 AND id = $2`

	m := &models.Message{}
	err := s.db.QueryRow(ctx, sql, channelID, messageID).Scan(&m.ID, &m.ChannelID, &m.Seq, &m.Sender, &m.Ciphertext, &m.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, unavailable(err, "repo.FindMessage.Scan: ")
	}
	return m, nil
}

func (s *PostgresStore) ListChannelsFor(ctx context.Context, identity models.Identity) ([]models.ChannelSummary, error) {
	sql := `
        SELECT c.id, c.kind, c.name, c.created_at,
               lm.id, lm.seq, lm.sender, lm.ciphertext, lm.sent_at,
               COALESCE((SELECT o.identity FROM channel_participants o
                         WHERE o.channel_id = c.id AND o.identity <> $1
                         ORDER BY o.ordinal LIMIT 1), ''),
               (SELECT count(*) FROM messages u
                WHERE u.channel_id = c.id AND u.sender <> $1
                  AND u.sent_at > COALESCE(r.read_at, '-infinity'::timestamptz))
        FROM channels c
        JOIN channel_participants p ON p.channel_id = c.id AND p.identity = $1
        LEFT JOIN read_marks r ON r.channel_id = c.id AND r.identity = $1
        LEFT JOIN LATERAL (
            SELECT id, seq, sender, ciphertext, sent_at FROM messages
            WHERE channel_id = c.id ORDER BY seq DESC LIMIT 1
        ) lm ON TRUE
        ORDER BY COALESCE(lm.sent_at, c.created_at) DESC`

	rows, err := s.db.Query(ctx, sql, identity)
	if err != nil {
		return nil, unavailable(err, "repo.ListChannelsFor.Query: ")
	}
	defer rows.Close()

	// Importante: inicializa como slice vazio, não nil, para consistência de JSON
	out := []models.ChannelSummary{}
	for rows.Next() {
		var (
			sum       models.ChannelSummary
			name      string
			createdAt time.Time
			other     string
			unread    int64
			lmID      *uuid.UUID
			lmSeq     *int64
			lmSender  *string
			lmText    *string
			lmSentAt  *time.Time
		)
		if err := rows.Scan(&sum.ID, &sum.Kind, &name, &createdAt,
			&lmID, &lmSeq, &lmSender, &lmText, &lmSentAt, &other, &unread); err != nil {
			return nil, unavailable(err, "repo.ListChannelsFor.Scan: ")
		}

		sum.Title = name
		if sum.Kind == models.KindDirect {
			sum.Title = other
		}
		sum.LastActivity = createdAt
		if lmID != nil {
			sum.LastMessage = &models.Message{
				ID:         *lmID,
				ChannelID:  sum.ID,
				Seq:        *lmSeq,
				Sender:     models.Identity(*lmSender),
				Ciphertext: *lmText,
				SentAt:     *lmSentAt,
			}
			sum.LastActivity = *lmSentAt
		}
		sum.Unread = int(unread)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "repo.ListChannelsFor.Rows: ")
	}
	return out, nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID uuid.UUID, caller models.Identity) (*models.Channel, error) {
	ch := &models.Channel{ReadMarks: map[models.Identity]time.Time{}}
	var provenance *string
	err := s.db.QueryRow(ctx, `SELECT id, kind, name, provenance, created_at FROM channels WHERE id = $1`, channelID).
		Scan(&ch.ID, &ch.Kind, &ch.Name, &provenance, &ch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrChannelNotFound
		}
		return nil, unavailable(err, "repo.GetChannel.Scan: ")
	}
	if provenance != nil {
		ch.Provenance = *provenance
	}

	rows, err := s.db.Query(ctx, `
        SELECT identity, joined_at, public_key, key_backup, is_creator
        FROM channel_participants WHERE channel_id = $1 ORDER BY ordinal`, channelID)
	if err != nil {
		return nil, unavailable(err, "repo.GetChannel.Participants: ")
	}
	ch.Participants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Participant, error) {
		var p models.Participant
		err := row.Scan(&p.Identity, &p.JoinedAt, &p.PublicKey, &p.KeyBackup, &p.IsCreator)
		return p, err
	})
	if err != nil {
		return nil, unavailable(err, "repo.GetChannel.Participants.Scan: ")
	}
	if !ch.HasParticipant(caller) {
		return nil, apperr.ErrNotAMember
	}

	rows, err = s.db.Query(ctx, `
        SELECT id, channel_id, seq, sender, ciphertext, sent_at
        FROM messages WHERE channel_id = $1 ORDER BY seq`, channelID)
	if err != nil {
		return nil, unavailable(err, "repo.GetChannel.Messages: ")
	}
	ch.Messages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
		var m models.Message
		err := row.Scan(&m.ID, &m.ChannelID, &m.Seq, &m.Sender, &m.Ciphertext, &m.SentAt)
		return m, err
	})
	if err != nil {
		return nil, unavailable(err, "repo.GetChannel.Messages.Scan: ")
	}

	rows, err = s.db.Query(ctx, `SELECT identity, read_at FROM read_marks WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, unavailable(err, "repo.GetChannel.ReadMarks: ")
	}
	defer rows.Close()
	for rows.Next() {
		var id models.Identity
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, unavailable(err, "repo.GetChannel.ReadMarks.Scan: ")
		}
		ch.ReadMarks[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err, "repo.GetChannel.ReadMarks.Rows: ")
	}
	return ch, nil
}

func (s *PostgresStore) Membership(ctx context.Context, channelID uuid.UUID, identity models.Identity) (models.ChannelKind, error) {
	var kind models.ChannelKind
	var member bool
	err := s.db.QueryRow(ctx, `
        SELECT c.kind, EXISTS (
            SELECT 1 FROM channel_participants p WHERE p.channel_id = c.id AND p.identity = $2)
        FROM channels c WHERE c.id = $1`, channelID, identity).Scan(&kind, &member)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.ErrChannelNotFound
		}
		return "", unavailable(err, "repo.Membership.Scan: ")
	}
	if !member {
		return "", apperr.ErrNotAMember
	}
	return kind, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, channelID uuid.UUID, identity models.Identity, at time.Time) (time.Time, error) {
	if _, err := s.Membership(ctx, channelID, identity); err != nil {
		return time.Time{}, err
	}

	// GREATEST torna a atualização monotônica sem trava extra
	var mark time.Time
	err := s.db.QueryRow(ctx, `
        INSERT INTO read_marks (channel_id, identity, read_at) VALUES ($1, $2, $3)
        ON CONFLICT (channel_id, identity)
        DO UPDATE SET read_at = GREATEST(read_marks.read_at, EXCLUDED.read_at)
        RETURNING read_at`, channelID, identity, at).Scan(&mark)
	if err != nil {
		return time.Time{}, unavailable(err, "repo.MarkRead.Upsert: ")
	}
	return mark, nil
}

func (s *PostgresStore) SetParticipantKey(ctx context.Context, channelID uuid.UUID, identity models.Identity, publicKey, keyBackup []byte) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE channel_participants SET public_key = $3, key_backup = $4
        WHERE channel_id = $1 AND identity = $2`, channelID, identity, nullBytes(publicKey), nullBytes(keyBackup))
	if err != nil {
		return unavailable(err, "repo.SetParticipantKey.Update: ")
	}
	if tag.RowsAffected() == 0 {
		_, err := s.Membership(ctx, channelID, identity)
		if err == nil {
			err = apperr.ErrNotAMember
		}
		return err
	}
	return nil
}

func nullBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
