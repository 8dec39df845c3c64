// Package domain defines the persistence models for servers, channels,
// messages, the bot status singleton, and command logs. These types are
// mapped with GORM and form the core data layer of the monitor backend.
package domain

import (
	"time"
)

// Server represents a Discord guild the bot is a member of. Rows are
// upserted on every topology sync and never deleted; a stale row for a
// guild the bot has left is harmless metadata.
//
// Fields:
//   - ID: stable snowflake ID assigned by Discord (primary key).
//   - Name: guild name; mutable, refreshed on sync.
//   - Icon: icon hash; nullable, refreshed on sync.
//   - JoinedAt: when the row was first created locally.
type Server struct {
	ID       string    `json:"id"        gorm:"type:varchar(32);primaryKey"`
	Name     string    `json:"name"      gorm:"type:varchar(255);not null"`
	Icon     *string   `json:"icon,omitempty" gorm:"type:varchar(255)"`
	JoinedAt time.Time `json:"joined_at"`
}

// TableName returns the database table name for Server.
func (Server) TableName() string { return "servers" }

// Channel represents a text channel inside a Server. Rows are upserted on
// topology sync; the owning Server row is always written first so the
// foreign key is satisfied.
type Channel struct {
	ID       string `json:"id"        gorm:"type:varchar(32);primaryKey"`
	ServerID string `json:"server_id" gorm:"type:varchar(32);not null;index:idx_server_channels"`
	Name     string `json:"name"      gorm:"type:varchar(255);not null"`
	Type     string `json:"type"      gorm:"type:varchar(32);not null"`

	// Server is the owning guild. Channels are cascade-deleted if their
	// server row is ever removed.
	Server Server `json:"-" gorm:"foreignKey:ServerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string { return "channels" }

// Message is a single chat message captured from the gateway. Messages are
// immutable once stored: a replayed delivery with the same ID must not
// change the original content. The only destruction path is the retention
// sweep.
//
// Fields:
//   - ID: snowflake ID assigned by Discord (primary key, globally unique).
//   - ServerID / ChannelID: where the message was posted (both indexed).
//   - AuthorID / AuthorUsername / AuthorDiscriminator: author identity as
//     seen at ingestion time; the discriminator is nullable since Discord
//     phased it out.
//   - Content: full text content.
//   - CreatedAt: message timestamp; drives retention and result ordering.
type Message struct {
	ID                  string    `json:"id"         gorm:"type:varchar(32);primaryKey"`
	ServerID            string    `json:"server_id"  gorm:"type:varchar(32);not null;index:idx_msg_server"`
	ChannelID           string    `json:"channel_id" gorm:"type:varchar(32);not null;index:idx_msg_channel"`
	AuthorID            string    `json:"author_id"  gorm:"type:varchar(32);not null"`
	AuthorUsername      string    `json:"author_username" gorm:"type:varchar(128);not null"`
	AuthorDiscriminator *string   `json:"author_discriminator,omitempty" gorm:"type:varchar(8)"`
	Content             string    `json:"content"    gorm:"type:text;not null"`
	CreatedAt           time.Time `json:"created_at" gorm:"index:idx_msg_created"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// BotStatusID is the fixed primary key of the BotStatus singleton row.
const BotStatusID = 1

// BotStatus is the singleton aggregate that mirrors the gateway connection
// state and caches collection cardinalities. The counter fields always
// equal the live cardinality of their collection after any mutating store
// call returns; StorageUsage is derived from MessagesCount.
type BotStatus struct {
	ID            int        `json:"-"            gorm:"primaryKey"`
	IsOnline      bool       `json:"is_online"`
	UptimeStarted *time.Time `json:"uptime_started,omitempty"`
	ServersCount  int64      `json:"servers_count"`
	ChannelsCount int64      `json:"channels_count"`
	MessagesCount int64      `json:"messages_count"`
	StorageUsage  int64      `json:"storage_usage"` // estimated bytes
	UpdatedAt     time.Time  `json:"-"`
}

// TableName returns the database table name for BotStatus.
func (BotStatus) TableName() string { return "bot_status" }

// CommandLog records one command execution, whether triggered by a chat
// message or by the external API, successful or not. Retrieval is
// newest-first (ExecutedAt descending, ID descending for ties); the store
// trims the collection to the newest 1000 rows after each insert.
type CommandLog struct {
	ID         int64     `json:"id"          gorm:"primaryKey;autoIncrement"`
	Command    string    `json:"command"     gorm:"type:text;not null"`
	Response   string    `json:"response"    gorm:"type:text;not null"`
	ExecutedAt time.Time `json:"executed_at" gorm:"index:idx_log_executed"`
}

// TableName returns the database table name for CommandLog.
func (CommandLog) TableName() string { return "command_logs" }
