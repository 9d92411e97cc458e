package middleware

import (
	"context"
	"strings"

	"payout-controlplane/services/ledger"

	"github.com/gin-gonic/gin"
)

const APIKeyHeader = "X-API-Key"

type channelKey struct{}

var ChannelContextKey = channelKey{}

// deriveChannelFromAPIKey guesses the client channel from the API key prefix.
func deriveChannelFromAPIKey(key string) ledger.Channel {
	switch {
	case strings.HasPrefix(key, "bot_"):
		return ledger.ChannelBot
	case strings.HasPrefix(key, "web_"):
		return ledger.ChannelWebapp
	default:
		return ledger.ChannelAPI
	}
}

// Channel stores the channel derived from X-API-Key on the request context.
func Channel() gin.HandlerFunc {
	return func(c *gin.Context) {
		channel := deriveChannelFromAPIKey(c.GetHeader(APIKeyHeader))
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ChannelContextKey, channel))
		c.Next()
	}
}

// FromChannel reports whether ctx originates from the given channel.
func FromChannel(ctx context.Context, want ledger.Channel) bool {
	ch, ok := ctx.Value(ChannelContextKey).(ledger.Channel)
	return ok && ch == want
}

// GetChannel returns the current channel, "api" when none was set.
func GetChannel(ctx context.Context) ledger.Channel {
	ch, ok := ctx.Value(ChannelContextKey).(ledger.Channel)
	if !ok {
		return ledger.ChannelAPI
	}
	return ch
}
