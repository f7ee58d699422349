package config

import "time"

// ConfigFileEnv names the environment variable holding the config file path
const ConfigFileEnv = "ISSUETRACKER_CONFIG_FILE"

// Timeout constants
const (
	// HTTP timeouts
	ReadHeaderTimeout = 10 * time.Second
	ShutdownTimeout   = 30 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute
	DatabasePingTimeout     = 5 * time.Second

	// Token lifetimes
	DefaultAccessTokenTTL  = 60 * time.Minute
	DefaultRefreshTokenTTL = 24 * time.Hour

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "issuetracker-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:;"
)

// MultipartMemory is how much of a multipart upload gin keeps in memory
// before spilling to temp files
const MultipartMemory = 8 << 20
