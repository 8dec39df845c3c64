// Package services – CommandService
//
// This file implements CommandService, the dispatcher behind both the chat
// auto-reply path and the POST /execute-command endpoint. It parses a raw
// command line into a verb plus arguments, consults the Store, and returns
// a display string. The executor itself is a pure dispatch with no
// lifecycle; command logging is owned by the callers so that failed
// executions are recorded too.
//
// Observability: Execute is OpenTelemetry-instrumented; spans carry the
// command verb.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapad/go-discord-monitor/internal/repo"
)

const (
	// CommandPrefix is the leading character identifying a chat message as
	// a bot command.
	CommandPrefix = "!"

	// messagesDefaultCount and messagesMaxCount bound the !messages verb.
	messagesDefaultCount = 5
	messagesMaxCount     = 20

	// contentPreviewRunes caps how much message content a command reply
	// shows per line.
	contentPreviewRunes = 100
)

// channelMentionRE matches a Discord channel-mention token like <#123456>.
var channelMentionRE = regexp.MustCompile(`^<#(\d+)>$`)

// UptimeFunc reports the formatted gateway uptime; wired to the connection
// manager at construction time.
type UptimeFunc func() string

// CommandService parses and executes the recognized command verbs.
type CommandService struct {
	Store  repo.Store
	Uptime UptimeFunc
}

// NewCommandService builds an executor over store; uptime may be nil, in
// which case !stats reports the zero-duration sentinel.
func NewCommandService(store repo.Store, uptime UptimeFunc) *CommandService {
	return &CommandService{Store: store, Uptime: uptime}
}

// Execute runs one command line and returns the display string. For an
// unrecognized verb it returns ErrUnknownCommand together with guidance
// text the caller can show (and log) verbatim. The caller is responsible
// for validating the prefix on API-originated input and for appending the
// CommandLog entry.
func (s *CommandService) Execute(ctx context.Context, raw string) (string, error) {
	tr := otel.Tracer("services/CommandService")

	raw = strings.TrimSpace(raw)
	fields := strings.Fields(raw)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], CommandPrefix) {
		return "", ErrMissingPrefix
	}

	verb := strings.ToLower(fields[0])
	args := fields[1:]

	ctx, span := tr.Start(ctx, "Execute",
		trace.WithAttributes(attribute.String("command.verb", verb)),
	)
	defer span.End()

	switch verb {
	case "!help":
		return helpText, nil
	case "!messages":
		return s.listMessages(ctx, args)
	case "!stats":
		return s.stats(ctx)
	case "!clear":
		return s.clear(ctx, args)
	default:
		return fmt.Sprintf("Unknown command %s. Use !help to see available commands.", verb), ErrUnknownCommand
	}
}

const helpText = "**Available commands**\n" +
	"!help — show this message\n" +
	"!messages [#channel] [count] — show recent messages (max 20)\n" +
	"!stats — server, channel and message totals plus uptime\n" +
	"!clear [days] — purge messages past the retention window"

// listMessages handles `!messages [channelRef] [count]`. Both arguments
// are optional and order-independent is not supported: a channel mention
// must come before the count, matching the documented syntax.
func (s *CommandService) listMessages(ctx context.Context, args []string) (string, error) {
	filter := repo.MessageFilter{Limit: messagesDefaultCount}

	rest := args
	if len(rest) > 0 {
		if m := channelMentionRE.FindStringSubmatch(rest[0]); m != nil {
			filter.ChannelID = m[1]
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		if n, err := strconv.Atoi(rest[0]); err == nil {
			filter.Limit = clampCount(n)
		}
	}

	page, total, err := s.Store.GetMessages(ctx, filter)
	if err != nil {
		return "", err
	}
	if total == 0 {
		return "No messages stored yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Showing %d of %d messages:\n", len(page), total)
	for _, m := range page {
		fmt.Fprintf(&b, "%s (%s): %s\n",
			m.AuthorUsername,
			m.CreatedAt.Format("2006-01-02 15:04"),
			truncateRunes(m.Content, contentPreviewRunes),
		)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// stats aggregates the cached counters and the connection uptime.
func (s *CommandService) stats(ctx context.Context) (string, error) {
	st, err := s.Store.GetBotStatus(ctx)
	if err != nil {
		return "", err
	}
	uptime := "0m"
	if s.Uptime != nil {
		uptime = s.Uptime()
	}
	return fmt.Sprintf(
		"**Bot statistics**\nServers: %d\nChannels: %d\nMessages stored: %d\nUptime: %s",
		st.ServersCount, st.ChannelsCount, st.MessagesCount, uptime,
	), nil
}

// clear handles `!clear [days]`. The days argument is echoed in the reply
// but the deletion always applies the store's fixed retention window; the
// argument is cosmetic and existing callers depend on the reply shape.
func (s *CommandService) clear(ctx context.Context, args []string) (string, error) {
	days := int(repo.RetentionWindow.Hours() / 24)
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			days = n
		}
	}

	deleted, err := s.Store.DeleteOldMessages(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted %d messages older than %d days.", deleted, days), nil
}

// clampCount bounds the !messages count argument to [1, messagesMaxCount],
// falling back to the default for non-positive values.
func clampCount(n int) int {
	if n < 1 {
		return messagesDefaultCount
	}
	if n > messagesMaxCount {
		return messagesMaxCount
	}
	return n
}

// truncateRunes cuts s at max runes, appending an ellipsis marker when
// content was dropped.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
