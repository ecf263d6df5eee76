package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"convochat/internal/app/db"
)

// foreignKeys maps the foreign keys created by the initial migration (default
// <table>_<column>_fkey names) to the error a violation stands for.
var foreignKeys = map[string]error{
	"messages_conversation_id_fkey":                  ErrNotFound,
	"messages_user_id_fkey":                          ErrUnknownUser,
	"conversation_participants_conversation_id_fkey": ErrNotFound,
	"conversation_participants_user_id_fkey":         ErrUnknownUser,
}

// missingReference translates a foreign key violation into ErrNotFound or ErrUnknownUser.
// It returns nil for any other error.
func missingReference(err error) error {
	name, ok := db.ForeignKeyConstraint(err)
	if !ok {
		return nil
	}
	if sentinel, known := foreignKeys[name]; known {
		return sentinel
	}
	return fmt.Errorf("foreign key %s violated: %w", name, err)
}

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an already migrated pool (see db.NewPool).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) AppendMessage(ctx context.Context, msg Message) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, user_id, username, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, msg.ConversationID, msg.UserID, msg.Username, msg.Content, msg.CreatedAt)
		if err != nil {
			if refErr := missingReference(err); refErr != nil {
				return refErr
			}
			return fmt.Errorf("insert message: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE conversations SET updated_at = $2 WHERE id = $1`,
			msg.ConversationID, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("update conversation timestamp: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		return nil
	})
}

func (s *Postgres) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, username, content, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Username, &m.Content, &m.CreatedAt)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	reverse(msgs)
	return msgs, nil
}

func (s *Postgres) GetMembership(ctx context.Context, conversationID, userID string) (Membership, error) {
	m := Membership{ConversationID: conversationID, UserID: userID}

	err := s.pool.QueryRow(ctx,
		`SELECT joined_at FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID).Scan(&m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, fmt.Errorf("select membership: %w", err)
	}

	m.JoinedAt = m.JoinedAt.UTC()
	return m, nil
}

func (s *Postgres) InsertMembershipIfAbsent(ctx context.Context, m Membership) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		m.ConversationID, m.UserID, m.JoinedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return false, nil
		}
		if refErr := missingReference(err); refErr != nil {
			return false, refErr
		}
		return false, fmt.Errorf("insert membership: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) CreateUser(ctx context.Context, u User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, username, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const selectUser = `SELECT id, email, username, password_hash, created_at FROM users`

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Postgres) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, selectUser+` WHERE email = $1`, email))
}

func (s *Postgres) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(s.pool.QueryRow(ctx, selectUser+` WHERE username = $1`, username))
}

func (s *Postgres) FindUsersByUsernames(ctx context.Context, usernames []string) ([]User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, selectUser+` WHERE username = ANY($1)`, usernames)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		return scanUser(row)
	})
}

func (s *Postgres) CreateConversation(ctx context.Context, conv Conversation, participantIDs []string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO conversations (id, name, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			conv.ID, conv.Name, conv.CreatedAt, conv.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert conversation: %w", err)
		}

		batch := &pgx.Batch{}
		for _, userID := range participantIDs {
			batch.Queue(
				`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
				 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				conv.ID, userID, conv.CreatedAt)
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if refErr := missingReference(err); refErr != nil {
				return refErr
			}
			return fmt.Errorf("insert participants: %w", err)
		}

		return nil
	})
}

func (s *Postgres) ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.name, c.created_at, c.updated_at
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = $1
		 ORDER BY c.updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Conversation, error) {
		var c Conversation
		err := row.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
		c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
		return c, err
	})
}
