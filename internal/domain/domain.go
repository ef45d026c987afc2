package domain

import "time"

type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	Bot         bool
}

// Name returns the global display name when set, otherwise the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type Channel struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
}

type Ticket struct {
	UserID    string
	ChannelID string
	CreatedAt time.Time
}

type Permission int64

// Bit values match the Discord permission flags so the adapter can pass them through.
const (
	PermissionManageChannels Permission = 1 << 4
	PermissionViewChannel    Permission = 1 << 10
	PermissionSendMessages   Permission = 1 << 11
	PermissionManageMessages Permission = 1 << 13
)

type OverwriteTarget string

const (
	OverwriteRole   OverwriteTarget = "role"
	OverwriteMember OverwriteTarget = "member"
)

type Overwrite struct {
	ID     string
	Target OverwriteTarget
	Allow  Permission
	Deny   Permission
}

type ChannelSpec struct {
	Name       string
	Topic      string
	ParentID   string
	Overwrites []Overwrite
}

type EmbedAuthor struct {
	Name    string
	IconURL string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Timestamp   time.Time
	Author      *EmbedAuthor
	Fields      []EmbedField
}

type InboundMessage struct {
	MessageID string
	ChannelID string
	Author    User
	Content   string
}

type StaffCommand struct {
	ChannelID string
	Author    User
}

type TicketEventKind string

const (
	TicketEventOpened      TicketEventKind = "opened"
	TicketEventUserMessage TicketEventKind = "user_message"
	TicketEventStaffReply  TicketEventKind = "staff_reply"
	TicketEventClosed      TicketEventKind = "closed"
)

type TicketEvent struct {
	ID        string          `json:"id"`
	Kind      TicketEventKind `json:"kind"`
	UserID    string          `json:"userId"`
	ChannelID string          `json:"channelId"`
	ActorID   string          `json:"actorId,omitempty"`
	Content   string          `json:"content,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
