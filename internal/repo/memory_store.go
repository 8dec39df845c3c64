// Package repo implements the data persistence layer for domain entities.
// This file provides MemoryStore, the non-durable Store backend used for
// development and tests. It holds everything in mutex-guarded maps and
// honors the exact same semantics as GormStore.
package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mpapad/go-discord-monitor/internal/domain"
)

// MemoryStore keeps all five collections in process memory. A single
// RWMutex serializes mutations, which also makes every counter update
// atomic with the write that caused it. Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	servers  map[string]domain.Server
	channels map[string]domain.Channel
	messages map[string]domain.Message
	status   domain.BotStatus
	logs     []domain.CommandLog
	nextLog  int64
}

// NewMemoryStore returns an empty store with the status singleton already
// initialized.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		servers:  make(map[string]domain.Server),
		channels: make(map[string]domain.Channel),
		messages: make(map[string]domain.Message),
		status:   domain.BotStatus{ID: domain.BotStatusID},
		nextLog:  1,
	}
}

// CreateMessage implements the idempotent insert: an existing ID returns
// the original row unchanged.
func (s *MemoryStore) CreateMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.messages[m.ID]; ok {
		out := existing
		return &out, nil
	}
	s.messages[m.ID] = *m
	s.refreshMessageCountersLocked()
	out := *m
	return &out, nil
}

// GetMessages filters, orders newest-first, and pages; total is the match
// count before pagination.
func (s *MemoryStore) GetMessages(_ context.Context, f MessageFilter) ([]domain.Message, int64, error) {
	f = normalizeFilter(f)
	search := strings.ToLower(f.Search)

	s.mu.RLock()
	matched := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if f.ServerID != "" && m.ServerID != f.ServerID {
			continue
		}
		if f.ChannelID != "" && m.ChannelID != f.ChannelID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(m.Content), search) &&
			!strings.Contains(strings.ToLower(m.AuthorUsername), search) {
			continue
		}
		matched = append(matched, m)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []domain.Message{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], total, nil
}

// DeleteOldMessages drops every message strictly older than the cutoff.
func (s *MemoryStore) DeleteOldMessages(_ context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-RetentionWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, m := range s.messages {
		if m.CreatedAt.Before(cutoff) {
			delete(s.messages, id)
			deleted++
		}
	}
	if deleted > 0 {
		s.refreshMessageCountersLocked()
	}
	return deleted, nil
}

// OldestMessageTime returns the earliest CreatedAt or ErrNotFound.
func (s *MemoryStore) OldestMessageTime(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest time.Time
	found := false
	for _, m := range s.messages {
		if !found || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
			found = true
		}
	}
	if !found {
		return time.Time{}, ErrNotFound
	}
	return oldest, nil
}

// CountActiveChannels counts distinct channels with at least one message.
func (s *MemoryStore) CountActiveChannels(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, m := range s.messages {
		seen[m.ChannelID] = struct{}{}
	}
	return int64(len(seen)), nil
}

// UpsertServer inserts or refreshes a server, preserving JoinedAt on update.
func (s *MemoryStore) UpsertServer(_ context.Context, srv *domain.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.servers[srv.ID]; ok {
		existing.Name = srv.Name
		existing.Icon = srv.Icon
		s.servers[srv.ID] = existing
	} else {
		s.servers[srv.ID] = *srv
		s.status.ServersCount = int64(len(s.servers))
	}
	return nil
}

// ListServers returns all servers ordered by name.
func (s *MemoryStore) ListServers(_ context.Context) ([]domain.Server, error) {
	s.mu.RLock()
	out := make([]domain.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpsertChannel inserts or refreshes a channel.
func (s *MemoryStore) UpsertChannel(_ context.Context, ch *domain.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.channels[ch.ID]; ok {
		existing.Name = ch.Name
		existing.Type = ch.Type
		s.channels[ch.ID] = existing
	} else {
		c := *ch
		c.Server = domain.Server{}
		s.channels[ch.ID] = c
		s.status.ChannelsCount = int64(len(s.channels))
	}
	return nil
}

// ListChannels returns channels ordered by name, optionally scoped to one
// server.
func (s *MemoryStore) ListChannels(_ context.Context, serverID string) ([]domain.Channel, error) {
	s.mu.RLock()
	out := make([]domain.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if serverID != "" && ch.ServerID != serverID {
			continue
		}
		out = append(out, ch)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetChannel returns one channel by ID or ErrNotFound.
func (s *MemoryStore) GetChannel(_ context.Context, id string) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := ch
	return &out, nil
}

// GetBotStatus returns a copy of the singleton row.
func (s *MemoryStore) GetBotStatus(_ context.Context) (*domain.BotStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.status
	return &out, nil
}

// UpdateBotStatus merges only the supplied fields.
func (s *MemoryStore) UpdateBotStatus(_ context.Context, u StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.IsOnline != nil {
		s.status.IsOnline = *u.IsOnline
	}
	if u.UptimeStarted != nil {
		t := *u.UptimeStarted
		s.status.UptimeStarted = &t
	} else if u.ClearUptime {
		s.status.UptimeStarted = nil
	}
	s.status.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateCommandLog appends one record and trims to the newest
// CommandLogCap entries (oldest dropped first).
func (s *MemoryStore) CreateCommandLog(_ context.Context, command, response string) (*domain.CommandLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := domain.CommandLog{
		ID:         s.nextLog,
		Command:    command,
		Response:   response,
		ExecutedAt: time.Now().UTC(),
	}
	s.nextLog++
	s.logs = append(s.logs, log)

	if len(s.logs) > CommandLogCap {
		s.logs = s.logs[len(s.logs)-CommandLogCap:]
	}
	out := log
	return &out, nil
}

// ListCommandLogs returns up to limit records, newest first.
func (s *MemoryStore) ListCommandLogs(_ context.Context, limit int) ([]domain.CommandLog, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	out := make([]domain.CommandLog, len(s.logs))
	copy(out, s.logs)
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// refreshMessageCountersLocked recomputes the message counters; the caller
// must hold the write lock.
func (s *MemoryStore) refreshMessageCountersLocked() {
	n := int64(len(s.messages))
	s.status.MessagesCount = n
	s.status.StorageUsage = StorageEstimate(n)
}
