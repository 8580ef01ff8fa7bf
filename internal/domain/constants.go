package domain

import "time"

// ==== WebSocket Constants ====

// MaxMessageSize is the maximum allowed WebSocket frame size in bytes
const MaxMessageSize = 64 * 1024

// MaxContentLength is the maximum number of characters in a message body
const MaxContentLength = 10000

// SendBufferSize is the number of outbound frames queued per connection
const SendBufferSize = 256

// ==== Session Constants ====

// TokenTTL is the default lifetime of an issued access token
const TokenTTL = 7 * 24 * time.Hour

// HandshakeTimeout bounds how long an unauthenticated socket may stay open
const HandshakeTimeout = 10 * time.Second

// ==== Rate Limit Constants ====

const (
	// DefaultRateLimitAPI is the default rate limit for HTTP endpoints (requests/sec)
	DefaultRateLimitAPI = 10

	// DefaultRateLimitWS is the default rate limit for WebSocket upgrades (req/sec)
	DefaultRateLimitWS = 5

	// DefaultRateLimitEvents is the per-connection inbound event rate (events/sec)
	DefaultRateLimitEvents = 20
)

// ==== Account Constants ====

// AccountCacheTTL is how long a positive account existence lookup is cached
const AccountCacheTTL = 5 * time.Minute
