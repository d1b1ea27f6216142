package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"installments/internal/logger"
)

// entry is one row of the key-value table.
type entry struct {
	Key       string    `gorm:"column:entry_key;primaryKey;size:255"`
	Value     string    `gorm:"column:entry_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (entry) TableName() string { return "kv_entries" }

// SQLiteKV implements KV on a single sqlite file through gorm.
type SQLiteKV struct {
	db  *gorm.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if needed) the sqlite file at path.
func OpenSQLite(path string) (*SQLiteKV, error) {
	const op = "OpenSQLite"

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open %s: %w", op, path, err)
	}

	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("%s: failed to migrate key-value table: %w", op, err)
	}

	log := logger.WithComponent("store")
	log.Debug().Str("path", path).Msg("Opened local store")

	return &SQLiteKV{db: db, log: log}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	const op = "Get"

	var e entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: failed to read %s: %w", op, key, err)
	}
	return e.Value, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	const op = "Set"

	e := entry{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at"}),
		}).
		Create(&e).Error
	if err != nil {
		return fmt.Errorf("%s: failed to write %s: %w", op, key, err)
	}

	s.log.Debug().Str("key", key).Int("bytes", len(value)).Msg("Stored value")
	return nil
}

func (s *SQLiteKV) Delete(ctx context.Context, keys ...string) error {
	const op = "Delete"

	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("entry_key IN ?", keys).Delete(&entry{}).Error; err != nil {
		return fmt.Errorf("%s: failed to delete %v: %w", op, keys, err)
	}
	return nil
}

func (s *SQLiteKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	const op = "Keys"

	var keys []string
	err := s.db.WithContext(ctx).
		Model(&entry{}).
		Where(`entry_key LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Order("entry_key").
		Pluck("entry_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list keys with prefix %q: %w", op, prefix, err)
	}
	return keys, nil
}

func (s *SQLiteKV) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// escapeLike escapes the LIKE wildcards so prefixes with underscores match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
