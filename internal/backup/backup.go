// Package backup keeps full snapshots of the ledger inside the local store and can
// push them to S3-compatible object storage.
//
// Manual snapshots are kept until deleted. Automatic snapshots are taken at most once
// per day, and only the newest backupRetention of them are kept.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"installments/internal/logger"
	"installments/internal/store"
	"installments/pkg/models"
)

// Kind tells manual and automatic snapshots apart.
type Kind string

const (
	KindManual Kind = "manual"
	KindAuto   Kind = "auto"
)

var (
	ErrNotFound    = errors.New("backup not found")
	ErrInvalidKey  = errors.New("not a backup key")
	ErrNoUploader  = errors.New("no backup storage configured")
	ErrEmptyBackup = errors.New("backup holds no data")
)

// Snapshot is a stored backup. Nil collections were absent when the snapshot was
// read and are left untouched on restore.
type Snapshot struct {
	Customers []models.Customer `json:"customers"`
	Sales     []models.Sale     `json:"sales"`
	Activity  []models.Activity `json:"activity"`
	Settings  *models.Settings  `json:"settings"`
	Timestamp time.Time         `json:"timestamp"`
	Type      Kind              `json:"type,omitempty"`
}

// Info describes a stored snapshot.
type Info struct {
	Key       string    `json:"key"`
	Type      Kind      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Customers int       `json:"customers"`
	Sales     int       `json:"sales"`
	Size      int       `json:"size"`
}

// Uploader stores a document under key in remote storage.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Manager creates, lists and restores snapshots.
type Manager struct {
	records  *store.Records
	uploader Uploader
	clock    func() time.Time
	log      zerolog.Logger
}

type Option func(*Manager)

func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithUploader enables Push.
func WithUploader(u Uploader) Option {
	return func(m *Manager) { m.uploader = u }
}

func NewManager(records *store.Records, opts ...Option) *Manager {
	m := &Manager{
		records: records,
		clock:   time.Now,
		log:     logger.WithComponent("backup"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateManual stores a snapshot under installments_backup_<unix ms>.
func (m *Manager) CreateManual(ctx context.Context) (Info, error) {
	now := m.clock()
	snap, err := m.snapshot(ctx, now, KindManual)
	if err != nil {
		return Info{}, fmt.Errorf("CreateManual: %w", err)
	}
	key := store.PrefixManualBackup + strconv.FormatInt(now.UnixMilli(), 10)
	return m.write(ctx, key, snap)
}

// AutoBackup stores today's automatic snapshot when autoBackup is enabled, replacing
// an earlier one from the same day, then prunes old automatic snapshots. It reports
// whether a snapshot was written.
func (m *Manager) AutoBackup(ctx context.Context) (Info, bool, error) {
	const op = "AutoBackup"

	settings := m.records.Settings(ctx).Value
	if !settings.AutoBackup {
		return Info{}, false, nil
	}

	now := m.clock()
	snap, err := m.snapshot(ctx, now, KindAuto)
	if err != nil {
		return Info{}, false, fmt.Errorf("%s: %w", op, err)
	}
	key := store.PrefixAutoBackup + now.UTC().Format("2006-01-02")
	info, err := m.write(ctx, key, snap)
	if err != nil {
		return Info{}, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := m.prune(ctx, settings.BackupRetention); err != nil {
		return info, true, fmt.Errorf("%s: %w", op, err)
	}
	return info, true, nil
}

// List returns every snapshot, newest first.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	const op = "List"

	var keys []string
	for _, prefix := range []string{store.PrefixManualBackup, store.PrefixAutoBackup} {
		k, err := m.records.KV().Keys(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		keys = append(keys, k...)
	}

	infos := make([]Info, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := m.records.KV().Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("Skipping unreadable backup")
			continue
		}
		infos = append(infos, describe(key, snap, len(raw)))
	}

	slices.SortStableFunc(infos, func(a, b Info) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return infos, nil
}

// Get reads the snapshot stored under key.
func (m *Manager) Get(ctx context.Context, key string) (Snapshot, []byte, error) {
	const op = "Get"

	if !IsBackupKey(key) {
		return Snapshot{}, nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidKey, key)
	}
	raw, ok, err := m.records.KV().Get(ctx, key)
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return Snapshot{}, nil, fmt.Errorf("%s: %w: %s", op, ErrNotFound, key)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, nil, fmt.Errorf("%s: %w: %s: %v", op, store.ErrMalformedRecord, key, err)
	}
	return snap, []byte(raw), nil
}

// Restore writes back every collection the snapshot holds. Callers resync schedules
// afterwards.
func (m *Manager) Restore(ctx context.Context, key string) (Info, error) {
	const op = "Restore"

	snap, raw, err := m.Get(ctx, key)
	if err != nil {
		return Info{}, err
	}
	if snap.Customers == nil && snap.Sales == nil && snap.Activity == nil && snap.Settings == nil {
		return Info{}, fmt.Errorf("%s: %w: %s", op, ErrEmptyBackup, key)
	}

	if snap.Customers != nil {
		if err := m.records.SaveCustomers(ctx, snap.Customers); err != nil {
			return Info{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if snap.Sales != nil {
		if err := m.records.SaveSales(ctx, snap.Sales); err != nil {
			return Info{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if snap.Activity != nil {
		if err := m.records.SaveActivity(ctx, snap.Activity); err != nil {
			return Info{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	if snap.Settings != nil {
		if err := m.records.SaveSettings(ctx, snap.Settings.Normalized()); err != nil {
			return Info{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	info := describe(key, snap, len(raw))
	m.log.Info().Str("key", key).Time("taken_at", info.Timestamp).Msg("Backup restored")
	return info, nil
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	if !IsBackupKey(key) {
		return fmt.Errorf("Delete: %w: %s", ErrInvalidKey, key)
	}
	return m.records.KV().Delete(ctx, key)
}

// Push uploads the snapshot under key and returns the object key used.
func (m *Manager) Push(ctx context.Context, key, prefix string) (string, error) {
	const op = "Push"

	if m.uploader == nil {
		return "", fmt.Errorf("%s: %w", op, ErrNoUploader)
	}
	_, raw, err := m.Get(ctx, key)
	if err != nil {
		return "", err
	}

	objectKey := strings.TrimSuffix(prefix, "/")
	if objectKey != "" {
		objectKey += "/"
	}
	objectKey += key + ".json"

	if err := m.uploader.Upload(ctx, objectKey, raw); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	m.log.Info().Str("key", key).Str("object", objectKey).Int("bytes", len(raw)).Msg("Backup pushed")
	return objectKey, nil
}

// IsBackupKey reports whether key names a stored snapshot.
func IsBackupKey(key string) bool {
	return strings.HasPrefix(key, store.PrefixManualBackup) || strings.HasPrefix(key, store.PrefixAutoBackup)
}

// snapshot fails when a collection cannot be read, so an empty fallback never replaces
// a good snapshot.
func (m *Manager) snapshot(ctx context.Context, now time.Time, kind Kind) (Snapshot, error) {
	customers, err := m.records.Customers(ctx).ForUpdate()
	if err != nil {
		return Snapshot{}, err
	}
	sales, err := m.records.Sales(ctx).ForUpdate()
	if err != nil {
		return Snapshot{}, err
	}
	activity, err := m.records.Activity(ctx).ForUpdate()
	if err != nil {
		return Snapshot{}, err
	}

	settings := m.records.Settings(ctx).Value
	return Snapshot{
		Customers: customers,
		Sales:     sales,
		Activity:  activity,
		Settings:  &settings,
		Timestamp: now.UTC(),
		Type:      kind,
	}, nil
}

func (m *Manager) write(ctx context.Context, key string, snap Snapshot) (Info, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Info{}, fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := m.records.KV().Set(ctx, key, string(data)); err != nil {
		return Info{}, err
	}

	info := describe(key, snap, len(data))
	m.log.Info().Str("key", key).Str("type", string(info.Type)).Int("bytes", info.Size).Msg("Backup created")
	return info, nil
}

// prune removes the oldest automatic snapshots beyond keep. Keys sort by date.
func (m *Manager) prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		keep = models.DefaultSettings().BackupRetention
	}
	keys, err := m.records.KV().Keys(ctx, store.PrefixAutoBackup)
	if err != nil {
		return err
	}
	if len(keys) <= keep {
		return nil
	}

	stale := keys[:len(keys)-keep]
	m.log.Debug().Strs("keys", stale).Msg("Pruning automatic backups")
	return m.records.KV().Delete(ctx, stale...)
}

func describe(key string, snap Snapshot, size int) Info {
	kind := snap.Type
	if kind == "" {
		kind = KindManual
		if strings.HasPrefix(key, store.PrefixAutoBackup) {
			kind = KindAuto
		}
	}
	return Info{
		Key:       key,
		Type:      kind,
		Timestamp: snap.Timestamp,
		Customers: len(snap.Customers),
		Sales:     len(snap.Sales),
		Size:      size,
	}
}
