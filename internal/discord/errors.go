package discord

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hanamilabs/discord-modmail/internal/domain"
)

// classify maps REST failures the services act on to domain sentinels.
// Anything else is returned wrapped but otherwise untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code, ok := restCode(err)
	if !ok {
		return err
	}
	switch code {
	case discordgo.ErrCodeCannotSendMessagesToThisUser:
		return fmt.Errorf("%w: %w", domain.ErrDeliveryForbidden, err)
	default:
		return fmt.Errorf("discord api code %d: %w", code, err)
	}
}

func isUnknown(err error, code int) bool {
	got, ok := restCode(err)
	return ok && got == code
}

func restCode(err error) (int, bool) {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return 0, false
	}
	return restErr.Message.Code, true
}
