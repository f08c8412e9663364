package kehai

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port       int
	oneBotURL  string
	logger     *slog.Logger
	version    string
	generator  ScheduleGenerator
	pusher     StatusPusher
	authorizer OverrideAuthorizer
}

// WithPort overrides the TCP port from config (KEHAI_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithOneBotURL overrides the backend base URL from config (KEHAI_ONEBOT_URL
// env var).
func WithOneBotURL(url string) Option {
	return func(o *resolvedOptions) { o.oneBotURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithGenerator replaces the built-in chat-completions schedule generator.
func WithGenerator(g ScheduleGenerator) Option {
	return func(o *resolvedOptions) { o.generator = g }
}

// WithAuthorizer gates override requests arriving through the MCP tools.
func WithAuthorizer(a OverrideAuthorizer) Option {
	return func(o *resolvedOptions) { o.authorizer = a }
}

// WithPusher replaces the built-in OneBot adapter. The replacement owns the
// full delivery contract, including any retries; remote presence lookups
// (GET /v1/users/{id}/status) are disabled when the built-in adapter is
// replaced.
func WithPusher(p StatusPusher) Option {
	return func(o *resolvedOptions) { o.pusher = p }
}
