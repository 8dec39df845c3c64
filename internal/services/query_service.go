// Package services – QueryService
//
// This file implements QueryService, the read-side aggregation consumed by
// the external API. It is built purely from Store primitives; there is no
// caching layer, so every read reflects the latest committed write.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapad/go-discord-monitor/internal/domain"
	"github.com/mpapad/go-discord-monitor/internal/repo"
)

// storageCapacityBytes is the fixed capacity ceiling the stats report
// expresses storage usage against.
const storageCapacityBytes = 512 << 20 // 512 MiB

// Gateway is the narrow view of the connection manager the read side
// needs. Satisfied by bot.Manager; kept as an interface so the HTTP layer
// stays servable in degraded mode with no live gateway at all.
type Gateway interface {
	IsConnected() bool
	Uptime() string
}

// StatusReport is the GET /status payload: the persisted singleton plus
// the live connection view.
type StatusReport struct {
	IsOnline      bool       `json:"is_online"`
	UptimeStarted *time.Time `json:"uptime_started,omitempty"`
	ServersCount  int64      `json:"servers_count"`
	ChannelsCount int64      `json:"channels_count"`
	MessagesCount int64      `json:"messages_count"`
	StorageUsage  int64      `json:"storage_usage"`
	Uptime        string     `json:"uptime"`
	IsConnected   bool       `json:"isConnected"`
}

// MessageView is a stored message enriched with its resolved channel name.
type MessageView struct {
	domain.Message
	ChannelName string `json:"channel_name"`
}

// MessagesPage is one page of search results plus the pre-pagination total.
type MessagesPage struct {
	Messages []MessageView `json:"messages"`
	Total    int64         `json:"total"`
}

// StatsReport is the GET /stats aggregate.
type StatsReport struct {
	TotalMessages      int64      `json:"total_messages"`
	ActiveChannels     int64      `json:"active_channels"`
	MonitoringDuration string     `json:"monitoring_duration"`
	StorageUsed        string     `json:"storage_used"`
	StoragePercent     float64    `json:"storage_percent"`
	OldestMessage      *time.Time `json:"oldest_message,omitempty"`
}

// QueryService aggregates Store reads for the external API.
type QueryService struct {
	Store   repo.Store
	Gateway Gateway
}

// NewQueryService builds the façade; gateway may be nil when the process
// runs without an ingestion connection.
func NewQueryService(store repo.Store, gateway Gateway) *QueryService {
	return &QueryService{Store: store, Gateway: gateway}
}

// Status merges the persisted singleton with the live connection state.
func (s *QueryService) Status(ctx context.Context) (*StatusReport, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "Status")
	defer span.End()

	st, err := s.Store.GetBotStatus(ctx)
	if err != nil {
		return nil, err
	}

	rep := &StatusReport{
		IsOnline:      st.IsOnline,
		UptimeStarted: st.UptimeStarted,
		ServersCount:  st.ServersCount,
		ChannelsCount: st.ChannelsCount,
		MessagesCount: st.MessagesCount,
		StorageUsage:  st.StorageUsage,
		Uptime:        "0m",
	}
	if s.Gateway != nil {
		rep.IsConnected = s.Gateway.IsConnected()
		rep.Uptime = s.Gateway.Uptime()
	}
	return rep, nil
}

// Servers lists all known servers.
func (s *QueryService) Servers(ctx context.Context) ([]domain.Server, error) {
	return s.Store.ListServers(ctx)
}

// Channels lists channels, optionally filtered by server.
func (s *QueryService) Channels(ctx context.Context, serverID string) ([]domain.Channel, error) {
	return s.Store.ListChannels(ctx, serverID)
}

// Messages runs a filtered, paginated search and resolves each message's
// channel name. Unknown channels (for example a message whose channel was
// deleted upstream) fall back to the raw channel ID.
func (s *QueryService) Messages(ctx context.Context, f repo.MessageFilter) (*MessagesPage, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "Messages",
		trace.WithAttributes(
			attribute.String("filter.server_id", f.ServerID),
			attribute.String("filter.channel_id", f.ChannelID),
			attribute.Int("filter.limit", f.Limit),
			attribute.Int("filter.offset", f.Offset),
		),
	)
	defer span.End()

	page, total, err := s.Store.GetMessages(ctx, f)
	if err != nil {
		return nil, err
	}

	channels, err := s.Store.ListChannels(ctx, "")
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(channels))
	for _, ch := range channels {
		names[ch.ID] = ch.Name
	}

	out := make([]MessageView, 0, len(page))
	for _, m := range page {
		name, ok := names[m.ChannelID]
		if !ok {
			name = m.ChannelID
		}
		out = append(out, MessageView{Message: m, ChannelName: name})
	}
	return &MessagesPage{Messages: out, Total: total}, nil
}

// Stats assembles the dashboard aggregate: totals, how long the monitor
// has been collecting (from the oldest stored message), and the storage
// estimate against the fixed capacity ceiling.
func (s *QueryService) Stats(ctx context.Context) (*StatsReport, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "Stats")
	defer span.End()

	st, err := s.Store.GetBotStatus(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.Store.CountActiveChannels(ctx)
	if err != nil {
		return nil, err
	}

	rep := &StatsReport{
		TotalMessages:      st.MessagesCount,
		ActiveChannels:     active,
		MonitoringDuration: "0 days",
		StorageUsed:        humanize.Bytes(uint64(st.StorageUsage)),
		StoragePercent:     float64(st.StorageUsage) / float64(storageCapacityBytes) * 100,
	}

	oldest, err := s.Store.OldestMessageTime(ctx)
	switch {
	case err == nil:
		rep.OldestMessage = &oldest
		days := int(time.Since(oldest).Hours() / 24)
		rep.MonitoringDuration = fmt.Sprintf("%d days", days)
	case errors.Is(err, repo.ErrNotFound):
		// no messages yet; keep the zero-duration label
	default:
		return nil, err
	}
	return rep, nil
}

// Logs returns command execution records, newest first.
func (s *QueryService) Logs(ctx context.Context, limit int) ([]domain.CommandLog, error) {
	return s.Store.ListCommandLogs(ctx, limit)
}
