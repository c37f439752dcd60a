package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/resources"
)

var (
	_ db.Client       = (*sqliteClient)(nil)
	_ db.StrikeLedger = (*sqliteClient)(nil)
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

func NewSQLiteClient(ctx context.Context, workDir, dbFile string) (*sqliteClient, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		filepath.Join(workDir, dbFile))
	dbx, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "cant open db")
	}
	dbx.SetMaxOpenConns(42)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.ExecContext(ctx, dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		_ = dbx.Close()
		return nil, errors.Wrap(err, "migrate up failed")
	}
	if n > 0 {
		log.WithField("object", "SQLiteClient").Infof("applied %d migrations", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (s *sqliteClient) Close() error {
	return s.db.Close()
}

func (s *sqliteClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	res := &db.Settings{}
	err := s.db.GetContext(ctx, res, `
		SELECT id, enabled, language, strength, content_checks, flood_checks,
			mute_threshold, mute_duration, admin_chat_id, anti_raid, welcome
		FROM chats WHERE id = ?`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings for chat %d: %w", chatID, err)
	}
	return res, nil
}

func (s *sqliteClient) SetSettings(ctx context.Context, settings *db.Settings) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO chats (id, enabled, language, strength, content_checks, flood_checks,
			mute_threshold, mute_duration, admin_chat_id, anti_raid, welcome)
		VALUES (:id, :enabled, :language, :strength, :content_checks, :flood_checks,
			:mute_threshold, :mute_duration, :admin_chat_id, :anti_raid, :welcome)
		ON CONFLICT(id) DO UPDATE SET
		enabled = excluded.enabled,
		language = excluded.language,
		strength = excluded.strength,
		content_checks = excluded.content_checks,
		flood_checks = excluded.flood_checks,
		mute_threshold = excluded.mute_threshold,
		mute_duration = excluded.mute_duration,
		admin_chat_id = excluded.admin_chat_id,
		anti_raid = excluded.anti_raid,
		welcome = excluded.welcome
	`
	if _, err := s.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("failed to set settings for chat %d: %w", settings.ID, err)
	}
	return nil
}

func (s *sqliteClient) WipeChat(ctx context.Context, chatID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, query := range []string{
		`DELETE FROM custom_words WHERE chat_id = ?`,
		`DELETE FROM moderation_log WHERE chat_id = ?`,
		`DELETE FROM new_members WHERE chat_id = ?`,
		`DELETE FROM chats WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, query, chatID); err != nil {
			return fmt.Errorf("failed to wipe chat %d: %w", chatID, err)
		}
	}
	return tx.Commit()
}
