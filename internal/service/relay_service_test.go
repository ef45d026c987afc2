package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hanamilabs/discord-modmail/internal/domain"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMessageOpensTicketOnce(t *testing.T) {
	h := newHarness()
	sink := &recordingSink{}

	require.NoError(t, h.relay.HandleUserMessage(context.Background(), dm("42", "help me"), sink))

	require.Len(t, h.platform.createdChannels, 1)
	ticket, ok := h.store.Get("42")
	require.True(t, ok)
	assert.Equal(t, "chan-1", ticket.ChannelID)
	assert.Equal(t, []string{"Ticket created successfully!"}, sink.descriptions())
	assert.Equal(t, notify.ColorSuccess, sink.last().Color)
}

func TestUserMessageMirrorsIntoExistingTicket(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.relay.HandleUserMessage(ctx, dm("42", "help me"), &recordingSink{}))

	sink := &recordingSink{}
	require.NoError(t, h.relay.HandleUserMessage(ctx, dm("42", "still broken"), sink))

	assert.Len(t, h.platform.createdChannels, 1)
	assert.Len(t, h.store.List(), 1)
	require.Len(t, h.platform.channelSends, 2)
	mirrored := h.platform.channelSends[1]
	assert.Equal(t, "chan-1", mirrored.target)
	assert.Equal(t, "Message from alice", mirrored.embed.Title)
	assert.Equal(t, "still broken", mirrored.embed.Description)
	assert.Equal(t, []string{"Message sent!"}, sink.descriptions())
	assert.Equal(t, []domain.TicketEventKind{domain.TicketEventOpened, domain.TicketEventUserMessage}, h.archive.kinds())
}

func TestUserMessageReopensWhenChannelVanished(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.relay.HandleUserMessage(ctx, dm("42", "help me"), &recordingSink{}))
	h.platform.dropChannel("chan-1")

	sink := &recordingSink{}
	require.NoError(t, h.relay.HandleUserMessage(ctx, dm("42", "hello?"), sink))

	assert.Len(t, h.platform.createdChannels, 2)
	ticket, ok := h.store.Get("42")
	require.True(t, ok)
	assert.Equal(t, "chan-2", ticket.ChannelID)
	assert.Equal(t, []string{"Ticket created successfully!"}, sink.descriptions())
}

func TestUserMessageIgnoresBotsAndEmptyContent(t *testing.T) {
	h := newHarness()
	sink := &recordingSink{}

	bot := dm("99", "beep")
	bot.Author.Bot = true
	require.NoError(t, h.relay.HandleUserMessage(context.Background(), bot, sink))
	require.NoError(t, h.relay.HandleUserMessage(context.Background(), dm("42", "   "), sink))

	assert.Empty(t, h.platform.createdChannels)
	assert.Empty(t, sink.descriptions())
}

func TestUserMessageCategoryMissingReportsError(t *testing.T) {
	h := newHarness()
	delete(h.platform.categories, "Tickets")
	sink := &recordingSink{}

	err := h.relay.HandleUserMessage(context.Background(), dm("42", "help"), sink)
	require.ErrorIs(t, err, domain.ErrCategoryMissing)
	assert.Equal(t, []string{"An error occurred while processing your message."}, sink.descriptions())
	assert.Equal(t, notify.ColorError, sink.last().Color)
	assert.Empty(t, h.store.List())
}

func TestUserMessageConcurrentOpensSingleTicket(t *testing.T) {
	h := newHarness()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.relay.HandleUserMessage(context.Background(), dm("42", "hi"), &recordingSink{})
		}()
	}
	wg.Wait()

	assert.Len(t, h.platform.createdChannels, 1)
	assert.Len(t, h.store.List(), 1)
	assert.Zero(t, h.relay.InFlight())
}

func TestStaffReplyDeliversToOwner(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	h.store.Add("42", "chan-9")
	sink := &recordingSink{}

	err := h.relay.HandleStaffReply(context.Background(), domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "7", Username: "mod"}}, "Fixed!", sink)
	require.NoError(t, err)

	require.Len(t, h.platform.directSends, 1)
	assert.Equal(t, "42", h.platform.directSends[0].target)
	assert.Equal(t, "Fixed!", h.platform.directSends[0].embed.Description)
	assert.Equal(t, "Reply from mod", h.platform.directSends[0].embed.Title)

	require.Len(t, h.platform.channelSends, 1)
	assert.Equal(t, "chan-9", h.platform.channelSends[0].target)
	assert.Equal(t, []string{"Reply sent to alice"}, sink.descriptions())
	assert.Equal(t, []domain.TicketEventKind{domain.TicketEventStaffReply}, h.archive.kinds())
}

func TestStaffReplyOutsideCategoryIsNoop(t *testing.T) {
	h := newHarness()
	h.store.Add("42", "general")
	sink := &recordingSink{}

	err := h.relay.HandleStaffReply(context.Background(), domain.StaffCommand{ChannelID: "general", Author: domain.User{ID: "7"}}, "hi", sink)
	require.NoError(t, err)

	assert.Zero(t, h.platform.totalSends())
	assert.Empty(t, sink.descriptions())
	_, ok := h.store.Get("42")
	assert.True(t, ok)
}

func TestStaffCommandsRequireManageMessages(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	h.store.Add("42", "chan-9")
	outsider := domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "8", Username: "nobody"}}

	replySink := &recordingSink{}
	err := h.relay.HandleStaffReply(context.Background(), outsider, "hi", replySink)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, []string{"You need Manage Messages permission to use this command."}, replySink.descriptions())

	closeSink := &recordingSink{}
	err = h.relay.HandleStaffClose(context.Background(), outsider, closeSink)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, []string{"You need Manage Messages permission to use this command."}, closeSink.descriptions())

	assert.Zero(t, h.platform.totalSends())
	assert.Empty(t, h.platform.deleted)
	_, ok := h.store.Get("42")
	assert.True(t, ok)
}

func TestStaffReplyInUntrackedChannel(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	sink := &recordingSink{}

	err := h.relay.HandleStaffReply(context.Background(), domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "7"}}, "hi", sink)
	require.ErrorIs(t, err, domain.ErrNotATicketChannel)
	assert.Equal(t, []string{"This is not a valid ticket channel."}, sink.descriptions())
}

func TestStaffReplyOwnerNotFound(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	h.store.Add("404", "chan-9")
	sink := &recordingSink{}

	err := h.relay.HandleStaffReply(context.Background(), domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "7"}}, "hi", sink)
	require.ErrorIs(t, err, domain.ErrTicketOwnerNotFound)
	assert.Equal(t, []string{"Ticket owner not found."}, sink.descriptions())
}

func TestStaffReplyDeliveryForbidden(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	h.store.Add("42", "chan-9")
	h.platform.directErr = domain.ErrDeliveryForbidden
	sink := &recordingSink{}

	err := h.relay.HandleStaffReply(context.Background(), domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "7"}}, "hi", sink)
	require.ErrorIs(t, err, domain.ErrDeliveryForbidden)
	assert.Equal(t, []string{"Cannot send message to this user (DMs might be disabled)."}, sink.descriptions())
	assert.Empty(t, h.platform.channelSends, "reply is not mirrored when delivery fails")
}

func TestStaffReplyUnexpectedFailure(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	h.store.Add("42", "chan-9")
	h.platform.fetchErr = errors.New("timeout")
	sink := &recordingSink{}

	err := h.relay.HandleStaffReply(context.Background(), domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "7"}}, "hi", sink)
	require.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.Equal(t, []string{"An unexpected error occurred."}, sink.descriptions())
}

func TestStaffCloseDeletionFailureReportsAndKeepsTicket(t *testing.T) {
	h := newHarness()
	h.platform.addTicketChannel("chan-9")
	h.store.Add("42", "chan-9")
	h.platform.deleteErr = errors.New("missing permissions")
	sink := &recordingSink{}

	err := h.relay.HandleStaffClose(context.Background(), domain.StaffCommand{ChannelID: "chan-9", Author: domain.User{ID: "7"}}, sink)
	require.ErrorIs(t, err, domain.ErrOperationFailed)
	assert.Equal(t, []string{"Closing ticket...", "Failed to close ticket due to an error."}, sink.descriptions())
	assert.Equal(t, notify.ColorError, sink.last().Color)
	_, ok := h.store.Get("42")
	assert.True(t, ok)
}

func TestRoundTrip(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	require.NoError(t, h.relay.HandleUserMessage(ctx, dm("42", "help me"), &recordingSink{}))
	ticket, ok := h.store.Get("42")
	require.True(t, ok)
	assert.Equal(t, "ticket-42", h.platform.createdChannels[0].Name)

	intro := h.platform.channelSends[0]
	assert.Equal(t, "help me", intro.embed.Description)
	assert.Contains(t, intro.embed.Fields, domain.EmbedField{Name: "User ID", Value: "42", Inline: true})

	require.NoError(t, h.commands.HandleGuildText(ctx, guildText(ticket.ChannelID, "7", "!reply Fixed!"), &recordingSink{}))
	require.Len(t, h.platform.directSends, 1)
	assert.Equal(t, "42", h.platform.directSends[0].target)
	assert.Contains(t, h.platform.directSends[0].embed.Description, "Fixed!")

	require.NoError(t, h.commands.HandleGuildText(ctx, guildText(ticket.ChannelID, "7", "!close"), &recordingSink{}))
	assert.Equal(t, []string{ticket.ChannelID}, h.platform.deleted)
	require.Len(t, h.platform.directSends, 2)
	assert.Contains(t, h.platform.directSends[1].embed.Description, "Your ticket has been closed.")
	_, ok = h.store.Get("42")
	assert.False(t, ok)
}
