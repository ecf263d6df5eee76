package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Timestamps are kept as unix microseconds so ORDER BY works on plain integers.

type userRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"not null;uniqueIndex"`
	Username     string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    int64  `gorm:"not null;autoCreateTime:false"`
}

func (userRow) TableName() string { return "users" }

type conversationRow struct {
	ID        string `gorm:"primaryKey"`
	Name      *string
	CreatedAt int64 `gorm:"not null;autoCreateTime:false"`
	UpdatedAt int64 `gorm:"not null;index;autoUpdateTime:false"`
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"not null;index:messages_conversation_created_idx,priority:1"`
	UserID         string `gorm:"not null"`
	Username       string `gorm:"not null"`
	Content        string `gorm:"not null"`
	CreatedAt      int64  `gorm:"not null;autoCreateTime:false;index:messages_conversation_created_idx,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

type participantRow struct {
	ConversationID string `gorm:"primaryKey"`
	UserID         string `gorm:"primaryKey;index"`
	JoinedAt       int64  `gorm:"not null"`
}

func (participantRow) TableName() string { return "conversation_participants" }

func toMicros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func (r messageRow) message() Message {
	return Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Username:       r.Username,
		Content:        r.Content,
		CreatedAt:      fromMicros(r.CreatedAt),
	}
}

func (r userRow) user() User {
	return User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    fromMicros(r.CreatedAt),
	}
}

func (r conversationRow) conversation() Conversation {
	return Conversation{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: fromMicros(r.CreatedAt),
		UpdatedAt: fromMicros(r.UpdatedAt),
	}
}

// requireReferences stands in for the foreign keys the Postgres schema declares, with the same
// errors: ErrNotFound for the conversation, ErrUnknownUser for the user.
func requireReferences(tx *gorm.DB, conversationID, userID string) error {
	var n int64
	if err := tx.Model(&conversationRow{}).Where("id = ?", conversationID).Count(&n).Error; err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := tx.Model(&userRow{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if n == 0 {
		return ErrUnknownUser
	}
	return nil
}

func distinct(ids []string) int {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

// SQLite implements Store with gorm on an SQLite file, for local runs and tests.
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &conversationRow{}, &messageRow{}, &participantRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying connection.
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLite) AppendMessage(ctx context.Context, msg Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireReferences(tx, msg.ConversationID, msg.UserID); err != nil {
			return err
		}

		row := messageRow{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			UserID:         msg.UserID,
			Username:       msg.Username,
			Content:        msg.Content,
			CreatedAt:      toMicros(msg.CreatedAt),
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("insert message: %w", err)
		}

		res := tx.Model(&conversationRow{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", row.CreatedAt)
		if res.Error != nil {
			return fmt.Errorf("update conversation timestamp: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

func (s *SQLite) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.message())
	}

	reverse(msgs)
	return msgs, nil
}

func (s *SQLite) GetMembership(ctx context.Context, conversationID, userID string) (Membership, error) {
	var row participantRow
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Membership{}, ErrNotFound
		}
		return Membership{}, fmt.Errorf("select membership: %w", err)
	}

	return Membership{
		ConversationID: row.ConversationID,
		UserID:         row.UserID,
		JoinedAt:       fromMicros(row.JoinedAt),
	}, nil
}

func (s *SQLite) InsertMembershipIfAbsent(ctx context.Context, m Membership) (bool, error) {
	var inserted bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireReferences(tx, m.ConversationID, m.UserID); err != nil {
			return err
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&participantRow{
			ConversationID: m.ConversationID,
			UserID:         m.UserID,
			JoinedAt:       toMicros(m.JoinedAt),
		})
		if res.Error != nil {
			return fmt.Errorf("insert membership: %w", res.Error)
		}

		inserted = res.RowsAffected == 1
		return nil
	})

	return inserted, err
}

func (s *SQLite) CreateUser(ctx context.Context, u User) error {
	err := s.db.WithContext(ctx).Create(&userRow{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    toMicros(u.CreatedAt),
	}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLite) getUser(ctx context.Context, column, value string) (User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where(column+" = ?", value).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user: %w", err)
	}
	return row.user(), nil
}

func (s *SQLite) GetUserByID(ctx context.Context, id string) (User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.getUser(ctx, "email", email)
}

func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLite) FindUsersByUsernames(ctx context.Context, usernames []string) ([]User, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	var rows []userRow
	if err := s.db.WithContext(ctx).Where("username IN ?", usernames).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (s *SQLite) CreateConversation(ctx context.Context, conv Conversation, participantIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Create(&conversationRow{
			ID:        conv.ID,
			Name:      conv.Name,
			CreatedAt: toMicros(conv.CreatedAt),
			UpdatedAt: toMicros(conv.UpdatedAt),
		}).Error
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("insert conversation: %w", err)
		}

		if len(participantIDs) == 0 {
			return nil
		}

		var known int64
		if err := tx.Model(&userRow{}).Where("id IN ?", participantIDs).Count(&known).Error; err != nil {
			return fmt.Errorf("check participants: %w", err)
		}
		if int(known) != distinct(participantIDs) {
			return ErrUnknownUser
		}

		rows := make([]participantRow, 0, len(participantIDs))
		for _, userID := range participantIDs {
			rows = append(rows, participantRow{
				ConversationID: conv.ID,
				UserID:         userID,
				JoinedAt:       toMicros(conv.CreatedAt),
			})
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

func (s *SQLite) ListConversationsForUser(ctx context.Context, userID string) ([]Conversation, error) {
	var rows []conversationRow
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id").
		Where("p.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}

	convs := make([]Conversation, 0, len(rows))
	for _, r := range rows {
		convs = append(convs, r.conversation())
	}
	return convs, nil
}
