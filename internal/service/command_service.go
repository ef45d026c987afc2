package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/hanamilabs/discord-modmail/internal/ports"
)

const (
	CommandReply = "reply"
	CommandClose = "close"
)

var commandAliases = map[string]string{
	"reply": CommandReply,
	"r":     CommandReply,
	"close": CommandClose,
	"c":     CommandClose,
}

// CommandService exposes reply and close through prefixed text commands and
// slash commands. Both entry points end in the same RelayService call.
type CommandService struct {
	relay  *RelayService
	format *notify.Formatter
	prefix string
}

func NewCommandService(relay *RelayService, format *notify.Formatter, prefix string) *CommandService {
	return &CommandService{relay: relay, format: format, prefix: prefix}
}

// ParseTextCommand splits "<prefix><name> <args>" into the canonical
// command name and the raw argument text. known=false with ok=true means the
// message used the prefix but named no supported command.
func ParseTextCommand(prefix string, content string) (name string, args string, ok bool, known bool) {
	trimmed := strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(trimmed, prefix) {
		return "", "", false, false
	}
	body := strings.TrimPrefix(trimmed, prefix)
	if body == "" || unicode.IsSpace(rune(body[0])) {
		return "", "", false, false
	}

	word, rest := body, ""
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		word, rest = body[:i], body[i:]
	}
	canonical, known := commandAliases[strings.ToLower(word)]
	if !known {
		return word, strings.TrimSpace(rest), true, false
	}
	return canonical, strings.TrimSpace(rest), true, true
}

// HandleGuildText runs a prefixed text command posted in the guild. Messages
// without the prefix are ignored.
func (s *CommandService) HandleGuildText(ctx context.Context, msg domain.InboundMessage, sink ports.ResponseSink) error {
	if msg.Author.Bot {
		return nil
	}
	name, args, ok, known := ParseTextCommand(s.prefix, msg.Content)
	if !ok {
		return nil
	}
	if !known {
		return sink.Respond(ctx, s.format.Error("Command not found."))
	}

	cmd := domain.StaffCommand{ChannelID: msg.ChannelID, Author: msg.Author}
	switch name {
	case CommandReply:
		if args == "" {
			return sink.Respond(ctx, s.format.Error("Usage: "+s.prefix+"reply <message>"))
		}
		return s.relay.HandleStaffReply(ctx, cmd, args, sink)
	default:
		return s.relay.HandleStaffClose(ctx, cmd, sink)
	}
}

// HandleSlash runs a slash command. options holds the string options by name.
func (s *CommandService) HandleSlash(ctx context.Context, name string, options map[string]string, cmd domain.StaffCommand, sink ports.ResponseSink) error {
	switch name {
	case CommandReply:
		text := strings.TrimSpace(options["message"])
		if text == "" {
			return sink.Respond(ctx, s.format.Error("Usage: /reply message:<text>"))
		}
		return s.relay.HandleStaffReply(ctx, cmd, text, sink)
	case CommandClose:
		return s.relay.HandleStaffClose(ctx, cmd, sink)
	default:
		return sink.Respond(ctx, s.format.Error("Command not found."))
	}
}
