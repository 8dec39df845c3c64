// Package repo implements the data persistence layer for domain entities.
// This file defines the Store contract shared by the two interchangeable
// backends: MemoryStore (mutex-guarded maps) and GormStore (SQLite via
// GORM). The backend is selected once at process construction time.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/mpapad/go-discord-monitor/internal/domain"
)

// ErrNotFound is returned when a lookup by ID matches nothing. Absence is
// a normal outcome, not a failure; callers branch on it with errors.Is.
var ErrNotFound = errors.New("record not found")

const (
	// RetentionWindow is the age beyond which messages are purged.
	// Deletion is strictly-older-than: a message created exactly at the
	// cutoff instant survives.
	RetentionWindow = 14 * 24 * time.Hour

	// CommandLogCap bounds the command log collection; after every insert
	// the oldest rows beyond the newest CommandLogCap are dropped.
	CommandLogCap = 1000

	// BytesPerMessage is the proportional storage estimate per stored
	// message. StorageUsage in BotStatus is MessagesCount * BytesPerMessage.
	BytesPerMessage = 512
)

// MessageFilter narrows and pages a message query. All set filters are
// conjunctive. Search matches case-insensitively against message content
// OR author username as a substring.
type MessageFilter struct {
	ServerID  string
	ChannelID string
	Search    string
	Limit     int // defaults to 10 when <= 0
	Offset    int // defaults to 0 when < 0
}

// StatusUpdate is a partial update of the BotStatus singleton; only
// non-nil fields are applied. ClearUptime resets UptimeStarted to NULL
// (a nil UptimeStarted alone means "leave unchanged").
type StatusUpdate struct {
	IsOnline      *bool
	UptimeStarted *time.Time
	ClearUptime   bool
}

// Store is the repository contract satisfied by both backends. Every
// mutating call leaves the BotStatus counters equal to the live
// cardinality of the affected collection before it returns, so a
// concurrent status read never observes a half-applied count.
type Store interface {
	// CreateMessage inserts m if its ID is unseen and returns the stored
	// row. If the ID already exists the call is an idempotent no-op and
	// the original row is returned unchanged; replayed deliveries never
	// mutate history.
	CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)

	// GetMessages returns one page of messages matching f (newest first
	// by CreatedAt, ID breaking ties) together with the total match count
	// before pagination.
	GetMessages(ctx context.Context, f MessageFilter) ([]domain.Message, int64, error)

	// DeleteOldMessages removes every message older than now minus the
	// retention window and returns how many were deleted. Safe to call
	// concurrently with CreateMessage; selection is by timestamp, not by
	// insertion order.
	DeleteOldMessages(ctx context.Context) (int64, error)

	// OldestMessageTime returns the CreatedAt of the oldest stored
	// message, or ErrNotFound when no messages exist.
	OldestMessageTime(ctx context.Context) (time.Time, error)

	// CountActiveChannels returns the number of distinct channels that
	// currently hold at least one stored message.
	CountActiveChannels(ctx context.Context) (int64, error)

	// UpsertServer inserts s or, when the ID exists, refreshes its
	// mutable fields (name, icon) in place.
	UpsertServer(ctx context.Context, s *domain.Server) error

	// ListServers returns all known servers ordered by name.
	ListServers(ctx context.Context) ([]domain.Server, error)

	// UpsertChannel inserts c or refreshes its mutable fields (name,
	// type). The owning server row must already exist; topology sync
	// always writes the server first.
	UpsertChannel(ctx context.Context, c *domain.Channel) error

	// ListChannels returns channels, optionally restricted to one server,
	// ordered by name.
	ListChannels(ctx context.Context, serverID string) ([]domain.Channel, error)

	// GetChannel returns one channel by ID or ErrNotFound.
	GetChannel(ctx context.Context, id string) (*domain.Channel, error)

	// GetBotStatus returns the singleton status row; the row is created
	// at first boot and exists thereafter.
	GetBotStatus(ctx context.Context) (*domain.BotStatus, error)

	// UpdateBotStatus applies a partial update to the singleton row.
	UpdateBotStatus(ctx context.Context, u StatusUpdate) error

	// CreateCommandLog appends one execution record and trims the
	// collection to the newest CommandLogCap rows.
	CreateCommandLog(ctx context.Context, command, response string) (*domain.CommandLog, error)

	// ListCommandLogs returns up to limit records, newest first.
	ListCommandLogs(ctx context.Context, limit int) ([]domain.CommandLog, error)
}

// normalizeFilter applies the documented paging defaults.
func normalizeFilter(f MessageFilter) MessageFilter {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// StorageEstimate converts a message count into the derived storage usage
// figure persisted on the status row.
func StorageEstimate(messages int64) int64 {
	return messages * BytesPerMessage
}
