// Package repo implements the data persistence layer for domain entities.
// This file provides GormStore, the durable Store backend on SQLite.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mpapad/go-discord-monitor/internal/domain"
)

// GormStore satisfies Store on top of a *gorm.DB handle. All mutating
// operations run inside a transaction that also refreshes the derived
// counters on the status row, so counts are never observed half-applied.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db and guarantees the BotStatus singleton row exists
// with counters matching the live collections (a restart may have left
// stale values behind).
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	s := &GormStore{db: db}
	err := db.Transaction(func(tx *gorm.DB) error {
		status := domain.BotStatus{ID: domain.BotStatusID}
		if err := tx.FirstOrCreate(&status, domain.BotStatus{ID: domain.BotStatusID}).Error; err != nil {
			return err
		}
		if err := refreshCounters(tx, &domain.Server{}, "servers_count"); err != nil {
			return err
		}
		if err := refreshCounters(tx, &domain.Channel{}, "channels_count"); err != nil {
			return err
		}
		return refreshMessageCounters(tx)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateMessage implements the idempotent insert. A concurrent duplicate
// that slips past the existence check surfaces as a primary-key violation
// and is translated back into the no-op contract.
func (s *GormStore) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	var stored domain.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Message
		err := tx.Where("id = ?", m.ID).First(&existing).Error
		if err == nil {
			stored = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(m).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
				if ferr := tx.Where("id = ?", m.ID).First(&existing).Error; ferr == nil {
					stored = existing
					return nil
				}
			}
			return err
		}
		stored = *m
		return refreshMessageCounters(tx)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// GetMessages returns a page ordered newest-first plus the pre-pagination
// total so callers can compute page counts.
func (s *GormStore) GetMessages(ctx context.Context, f MessageFilter) ([]domain.Message, int64, error) {
	f = normalizeFilter(f)

	q := s.db.WithContext(ctx).Model(&domain.Message{})
	if f.ServerID != "" {
		q = q.Where("server_id = ?", f.ServerID)
	}
	if f.ChannelID != "" {
		q = q.Where("channel_id = ?", f.ChannelID)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(content) LIKE ? OR LOWER(author_username) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.Message
	err := q.
		Order("created_at DESC, id DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&out).Error
	return out, total, err
}

// DeleteOldMessages purges rows strictly older than now minus the
// retention window and refreshes the message counters.
func (s *GormStore) DeleteOldMessages(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-RetentionWindow)

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", cutoff).Delete(&domain.Message{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return refreshMessageCounters(tx)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// OldestMessageTime returns the earliest CreatedAt, or ErrNotFound when
// the collection is empty.
func (s *GormStore) OldestMessageTime(ctx context.Context) (time.Time, error) {
	var m domain.Message
	err := s.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return m.CreatedAt, nil
}

// CountActiveChannels counts distinct channels holding at least one message.
func (s *GormStore) CountActiveChannels(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&domain.Message{}).
		Distinct("channel_id").
		Count(&n).Error
	return n, err
}

// UpsertServer inserts srv or refreshes the mutable fields of an existing
// row (JoinedAt is preserved on conflict).
func (s *GormStore) UpsertServer(ctx context.Context, srv *domain.Server) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "icon"}),
		}).Create(srv).Error
		if err != nil {
			return err
		}
		return refreshCounters(tx, &domain.Server{}, "servers_count")
	})
}

// ListServers returns all servers ordered by name.
func (s *GormStore) ListServers(ctx context.Context) ([]domain.Server, error) {
	var out []domain.Server
	err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

// UpsertChannel inserts ch or refreshes the mutable fields in place.
func (s *GormStore) UpsertChannel(ctx context.Context, ch *domain.Channel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "type"}),
		}).Create(ch).Error
		if err != nil {
			return err
		}
		return refreshCounters(tx, &domain.Channel{}, "channels_count")
	})
}

// ListChannels returns channels ordered by name, optionally scoped to one
// server.
func (s *GormStore) ListChannels(ctx context.Context, serverID string) ([]domain.Channel, error) {
	q := s.db.WithContext(ctx).Model(&domain.Channel{})
	if serverID != "" {
		q = q.Where("server_id = ?", serverID)
	}
	var out []domain.Channel
	err := q.Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

// GetChannel fetches one channel by ID.
func (s *GormStore) GetChannel(ctx context.Context, id string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&ch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// GetBotStatus returns the singleton row created by NewGormStore.
func (s *GormStore) GetBotStatus(ctx context.Context) (*domain.BotStatus, error) {
	var st domain.BotStatus
	if err := s.db.WithContext(ctx).Where("id = ?", domain.BotStatusID).First(&st).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// UpdateBotStatus merges only the supplied fields into the singleton row.
func (s *GormStore) UpdateBotStatus(ctx context.Context, u StatusUpdate) error {
	updates := map[string]any{}
	if u.IsOnline != nil {
		updates["is_online"] = *u.IsOnline
	}
	if u.UptimeStarted != nil {
		updates["uptime_started"] = *u.UptimeStarted
	} else if u.ClearUptime {
		updates["uptime_started"] = nil
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&domain.BotStatus{}).
		Where("id = ?", domain.BotStatusID).
		Updates(updates).Error
}

// CreateCommandLog appends one record and trims the collection to the
// newest CommandLogCap rows.
func (s *GormStore) CreateCommandLog(ctx context.Context, command, response string) (*domain.CommandLog, error) {
	log := &domain.CommandLog{
		Command:    command,
		Response:   response,
		ExecutedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(log).Error; err != nil {
			return err
		}
		return tx.Exec(
			`DELETE FROM command_logs WHERE id NOT IN
			 (SELECT id FROM command_logs ORDER BY executed_at DESC, id DESC LIMIT ?)`,
			CommandLogCap,
		).Error
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// ListCommandLogs returns up to limit records, newest first.
func (s *GormStore) ListCommandLogs(ctx context.Context, limit int) ([]domain.CommandLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.CommandLog
	err := s.db.WithContext(ctx).
		Order("executed_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// refreshMessageCounters recomputes messages_count and the derived
// storage_usage inside the caller's transaction.
func refreshMessageCounters(tx *gorm.DB) error {
	var n int64
	if err := tx.Model(&domain.Message{}).Count(&n).Error; err != nil {
		return err
	}
	return tx.Model(&domain.BotStatus{}).
		Where("id = ?", domain.BotStatusID).
		Updates(map[string]any{
			"messages_count": n,
			"storage_usage":  StorageEstimate(n),
		}).Error
}

// refreshCounters recomputes one cardinality column on the status row.
func refreshCounters(tx *gorm.DB, model any, column string) error {
	var n int64
	if err := tx.Model(model).Count(&n).Error; err != nil {
		return err
	}
	return tx.Model(&domain.BotStatus{}).
		Where("id = ?", domain.BotStatusID).
		Update(column, n).Error
}

// isDuplicate detects unique-constraint violations across drivers that may
// not map to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
