// Gateway event handlers.
//
// Events are dispatched by discordgo one at a time per handler; each
// handler runs to completion before the next event of its kind is
// processed. A failed unit of work (one event, one guild sync) is logged
// and isolated — it never terminates the event loop or the process.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mpapad/go-discord-monitor/internal/domain"
	"github.com/mpapad/go-discord-monitor/internal/services"
)

// onReady runs a full topology resync: every guild the session is a
// member of, server-major, channel-minor. Each server is fully upserted,
// including its channel list, before the next one is touched.
func (m *Manager) onReady(s *discordgo.Session, r *discordgo.Ready) {
	m.log.Info().Int("guilds", len(r.Guilds)).Msg("gateway ready, syncing topology")

	ctx := context.Background()
	for _, g := range s.State.Guilds {
		if err := m.syncGuild(ctx, s, g); err != nil {
			m.log.Error().Err(err).Str("guild_id", g.ID).Msg("topology sync failed")
		}
	}
}

// onGuildCreate fires for every guild on connect and whenever the bot
// joins a new one; the idempotent upsert absorbs both cases.
func (m *Manager) onGuildCreate(s *discordgo.Session, e *discordgo.GuildCreate) {
	if err := m.syncGuild(context.Background(), s, e.Guild); err != nil {
		m.log.Error().Err(err).Str("guild_id", e.ID).Msg("guild sync failed")
	}
}

// onChannelCreate re-syncs the owning guild so the server row is always
// written before the new channel.
func (m *Manager) onChannelCreate(s *discordgo.Session, e *discordgo.ChannelCreate) {
	if e.GuildID == "" {
		return
	}
	guild, err := s.State.Guild(e.GuildID)
	if err != nil {
		m.log.Error().Err(err).Str("guild_id", e.GuildID).Msg("channel create for unknown guild")
		return
	}
	if err := m.syncGuild(context.Background(), s, guild); err != nil {
		m.log.Error().Err(err).Str("guild_id", e.GuildID).Msg("guild sync failed")
	}
}

// onMessageCreate stores inbound messages and routes command-prefixed
// content to the executor, replying on the originating channel.
func (m *Manager) onMessageCreate(s *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Author == nil {
		return
	}
	// Never ingest our own messages; replying to them would loop.
	if s.State.User != nil && e.Author.ID == s.State.User.ID {
		return
	}
	// Direct messages carry no server context and are not monitored.
	if e.GuildID == "" {
		return
	}

	ctx := context.Background()
	if _, err := m.store.CreateMessage(ctx, messageFromEvent(e)); err != nil {
		m.log.Error().Err(err).Str("message_id", e.ID).Msg("storing message failed")
	} else {
		messagesIngested.Inc()
	}

	if strings.HasPrefix(e.Content, services.CommandPrefix) {
		m.handleCommand(ctx, s, e)
	}
}

// onDisconnect logs the drop; discordgo owns reconnection, so connection
// state is not altered here.
func (m *Manager) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	m.log.Warn().Msg("gateway connection dropped, transport will reconnect")
}

// handleCommand executes one chat command, records the CommandLog entry
// (success or failure), and replies on the same channel.
func (m *Manager) handleCommand(ctx context.Context, s *discordgo.Session, e *discordgo.MessageCreate) {
	resp, err := m.exec.Execute(ctx, e.Content)
	if err != nil {
		m.log.Warn().Err(err).Str("command", e.Content).Msg("command execution failed")
		if resp == "" {
			resp = "Command failed, please try again."
		}
	}

	if _, err := m.store.CreateCommandLog(ctx, e.Content, resp); err != nil {
		m.log.Error().Err(err).Msg("recording command log failed")
	}
	if _, err := s.ChannelMessageSend(e.ChannelID, resp); err != nil {
		m.log.Error().Err(err).Str("channel_id", e.ChannelID).Msg("sending command reply failed")
	}
}

// syncGuild upserts one server and then its full channel list. The server
// row is always written first so channel rows never dangle.
func (m *Manager) syncGuild(ctx context.Context, s *discordgo.Session, g *discordgo.Guild) error {
	srv := &domain.Server{
		ID:       g.ID,
		Name:     g.Name,
		JoinedAt: time.Now().UTC(),
	}
	if g.Icon != "" {
		icon := g.Icon
		srv.Icon = &icon
	}
	if !g.JoinedAt.IsZero() {
		srv.JoinedAt = g.JoinedAt
	}
	if err := m.store.UpsertServer(ctx, srv); err != nil {
		return err
	}

	channels := g.Channels
	if len(channels) == 0 {
		var err error
		channels, err = s.GuildChannels(g.ID)
		if err != nil {
			return err
		}
	}
	for _, ch := range channels {
		if err := m.store.UpsertChannel(ctx, &domain.Channel{
			ID:       ch.ID,
			ServerID: g.ID,
			Name:     ch.Name,
			Type:     channelTypeName(ch.Type),
		}); err != nil {
			return err
		}
	}
	return nil
}

// messageFromEvent converts a gateway message event into the stored form.
func messageFromEvent(e *discordgo.MessageCreate) *domain.Message {
	createdAt := e.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &domain.Message{
		ID:                  e.ID,
		ServerID:            e.GuildID,
		ChannelID:           e.ChannelID,
		AuthorID:            e.Author.ID,
		AuthorUsername:      e.Author.Username,
		AuthorDiscriminator: normalizeDiscriminator(e.Author.Discriminator),
		Content:             e.Content,
		CreatedAt:           createdAt.UTC(),
	}
}

// normalizeDiscriminator maps Discord's retired "no discriminator"
// placeholders to nil.
func normalizeDiscriminator(d string) *string {
	if d == "" || d == "0" || d == "0000" {
		return nil
	}
	return &d
}

// channelTypeName flattens the transport's channel type enum into the
// stored string form.
func channelTypeName(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return "text"
	case discordgo.ChannelTypeGuildVoice:
		return "voice"
	case discordgo.ChannelTypeGuildCategory:
		return "category"
	case discordgo.ChannelTypeGuildNews:
		return "news"
	case discordgo.ChannelTypeGuildNewsThread,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread:
		return "thread"
	case discordgo.ChannelTypeGuildStageVoice:
		return "stage"
	case discordgo.ChannelTypeGuildForum:
		return "forum"
	case discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return "dm"
	default:
		return "unknown"
	}
}
