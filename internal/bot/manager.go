package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/mpapad/go-discord-monitor/internal/repo"
)

// Executor runs one command line and returns the display string. Satisfied
// by services.CommandService; kept as an interface so the event handlers
// can be exercised without the full service wiring.
type Executor interface {
	Execute(ctx context.Context, raw string) (string, error)
}

// Manager owns the lifecycle of the single gateway connection: connect,
// disconnect bookkeeping, uptime tracking, and the sweeper schedule. A
// process runs at most one Manager; the transport itself handles gateway
// reconnects underneath an open session.
type Manager struct {
	token   string
	store   repo.Store
	exec    Executor
	log     zerolog.Logger
	sweeper *Sweeper

	mu        sync.Mutex
	session   *discordgo.Session
	startedAt time.Time
	connected bool
}

// NewManager builds a manager; Start opens the connection.
func NewManager(token string, store repo.Store, exec Executor, log zerolog.Logger) *Manager {
	return &Manager{
		token:   token,
		store:   store,
		exec:    exec,
		log:     log,
		sweeper: NewSweeper(store, log),
	}
}

// Start opens the gateway connection. On success it records the start
// time, persists the online transition, and arms the retention sweeper —
// all before returning, so a concurrent status read observes either the
// prior state or the new one, never a transient "starting" state. On
// failure the offline state is persisted and the error is returned; the
// rest of the process stays servable in degraded mode.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return nil
	}

	session, err := discordgo.New("Bot " + strings.TrimSpace(m.token))
	if err != nil {
		m.persistOffline(ctx)
		return fmt.Errorf("create gateway session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	session.AddHandler(m.onReady)
	session.AddHandler(m.onMessageCreate)
	session.AddHandler(m.onGuildCreate)
	session.AddHandler(m.onChannelCreate)
	session.AddHandler(m.onDisconnect)

	if err := session.Open(); err != nil {
		m.persistOffline(ctx)
		return fmt.Errorf("open gateway connection: %w", err)
	}

	now := time.Now().UTC()
	online := true
	if err := m.store.UpdateBotStatus(ctx, repo.StatusUpdate{IsOnline: &online, UptimeStarted: &now}); err != nil {
		_ = session.Close()
		return fmt.Errorf("persist online status: %w", err)
	}

	m.session = session
	m.startedAt = now
	m.connected = true
	m.sweeper.Start()
	gatewayConnected.Set(1)

	m.log.Info().Msg("gateway connection established")
	return nil
}

// Stop disarms the sweeper, closes the connection if open, and persists
// the offline transition. Calling Stop when not connected is a no-op.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return
	}

	m.sweeper.Stop()
	if err := m.session.Close(); err != nil {
		m.log.Error().Err(err).Msg("closing gateway connection")
	}
	m.session = nil
	m.connected = false
	m.startedAt = time.Time{}
	gatewayConnected.Set(0)

	m.persistOffline(ctx)
	m.log.Info().Msg("gateway connection closed")
}

// IsConnected reports whether the gateway connection is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Uptime returns the formatted time since the connection opened, or the
// zero-duration sentinel when not connected.
func (m *Manager) Uptime() string {
	m.mu.Lock()
	startedAt, connected := m.startedAt, m.connected
	m.mu.Unlock()

	if !connected {
		return "0m"
	}
	return FormatUptime(time.Since(startedAt))
}

// persistOffline flips the status row to offline and clears the start
// time. Persistence failures are logged; the in-memory state is already
// authoritative for IsConnected.
func (m *Manager) persistOffline(ctx context.Context) {
	offline := false
	if err := m.store.UpdateBotStatus(ctx, repo.StatusUpdate{IsOnline: &offline, ClearUptime: true}); err != nil {
		m.log.Error().Err(err).Msg("persist offline status")
	}
}

// FormatUptime renders a duration as its two largest non-zero units among
// days, hours, and minutes ("2d 3h", "1h 05m" style without padding:
// "1h 5m"). Durations under a minute, including zero, render as "0m".
func FormatUptime(d time.Duration) string {
	if d < time.Minute {
		return "0m"
	}

	days := int(d / (24 * time.Hour))
	hours := int(d / time.Hour % 24)
	minutes := int(d / time.Minute % 60)

	parts := make([]string, 0, 2)
	for _, u := range []struct {
		n      int
		suffix string
	}{
		{days, "d"},
		{hours, "h"},
		{minutes, "m"},
	} {
		if u.n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " ")
}
