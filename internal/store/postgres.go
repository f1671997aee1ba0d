package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/zhouzirui/simplifychat/backend/internal/config"
	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

// PostgresStore implements Store on PostgreSQL through GORM.
type PostgresStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to the database described by cfg and verifies the connection.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("postgres: DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(cfg.URL), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger: logger.New(log.New(os.Stdout, "[gorm] ", log.LstdFlags), logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: underlying pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &PostgresStore{db: db, sqlDB: sqlDB}, nil
}

// Migrate creates or updates the conversations and messages tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&chat.Conversation{}, &chat.Message{}); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *chat.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.CreatedAt = storedTime(c.CreatedAt)
	if c.Participants == nil {
		c.Participants = []string{}
	}

	// Messages are appended separately; never cascade-insert from here.
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		return fmt.Errorf("postgres: create conversation: %w", err)
	}
	c.Messages = []chat.Message{}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*chat.Conversation, error) {
	var c chat.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", orderMessages).
		First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get conversation: %w", err)
	}
	normalize(&c)
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, find FindConversations) ([]chat.Conversation, int64, error) {
	filter := func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("user_id = ?", find.UserID)
		if find.StartDate != nil {
			tx = tx.Where("created_at >= ?", *find.StartDate)
		}
		if find.EndDate != nil {
			tx = tx.Where("created_at <= ?", *find.EndDate)
		}
		return tx
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&chat.Conversation{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("postgres: count conversations: %w", err)
	}

	query := s.db.WithContext(ctx).
		Scopes(filter).
		Preload("Messages", orderMessages).
		Order("created_at DESC").
		Order("id DESC")
	if find.Offset > 0 {
		query = query.Offset(find.Offset)
	}
	if find.Limit > 0 {
		query = query.Limit(find.Limit)
	}

	list := make([]chat.Conversation, 0)
	if err := query.Find(&list).Error; err != nil {
		return nil, 0, fmt.Errorf("postgres: list conversations: %w", err)
	}
	for i := range list {
		normalize(&list[i])
	}
	return list, total, nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The FK cascades as well; deleting explicitly keeps tables created by other tools consistent.
		if err := tx.Where("conversation_id = ?", id).Delete(&chat.Message{}).Error; err != nil {
			return fmt.Errorf("postgres: delete messages: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&chat.Conversation{})
		if res.Error != nil {
			return fmt.Errorf("postgres: delete conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *chat.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = storedTime(m.CreatedAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the parent row so concurrent appends get strictly increasing timestamps.
		var parent chat.Conversation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&parent, "id = ?", m.ConversationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var last chat.Message
		err = tx.Select("created_at").
			Where("conversation_id = ?", m.ConversationID).
			Order("created_at DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return err
		}
		if !last.CreatedAt.IsZero() {
			m.CreatedAt = nextMessageTime(m.CreatedAt, last.CreatedAt)
		}

		return tx.Create(m).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrNotFound
	default:
		return fmt.Errorf("postgres: append message: %w", err)
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.sqlDB.Close()
}

func orderMessages(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at ASC")
}

func normalize(c *chat.Conversation) {
	if c.Participants == nil {
		c.Participants = []string{}
	}
	if c.Messages == nil {
		c.Messages = []chat.Message{}
	}
	c.CreatedAt = c.CreatedAt.UTC()
	for i := range c.Messages {
		c.Messages[i].CreatedAt = c.Messages[i].CreatedAt.UTC()
	}
}
