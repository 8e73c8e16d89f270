package agent

import "strings"

// Config is the process-wide configuration, read once at startup.
type Config struct {
	APIKey       string // AGENT_API_KEY
	AgentID      string // AGENT_ID
	Endpoint     string // AGENT_API_URL
	UserID       string // AGENT_USER_ID
	Origin       string // AGENT_ORIGIN
	Provider     string // AGENT_PROVIDER: "http" (default) or "gemini"
	GeminiAPIKey string // GEMINI_API_KEY
	GeminiModel  string // GEMINI_MODEL
	HostURL      string // AGENT_HOST_URL: parent to forward errors to
	HostSecret   string // AGENT_HOST_SECRET: HS256 key for forwarded errors
	JournalDSN   string // AGENT_JOURNAL_DSN: PostgreSQL error journal
}

// LoadConfig reads Config through getenv, normally os.Getenv.
func LoadConfig(getenv func(string) string) Config {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }
	cfg := Config{
		APIKey:       get("AGENT_API_KEY"),
		AgentID:      get("AGENT_ID"),
		Endpoint:     get("AGENT_API_URL"),
		UserID:       get("AGENT_USER_ID"),
		Origin:       get("AGENT_ORIGIN"),
		Provider:     strings.ToLower(get("AGENT_PROVIDER")),
		GeminiAPIKey: get("GEMINI_API_KEY"),
		GeminiModel:  get("GEMINI_MODEL"),
		HostURL:      get("AGENT_HOST_URL"),
		HostSecret:   get("AGENT_HOST_SECRET"),
		JournalDSN:   get("AGENT_JOURNAL_DSN"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "http"
	}
	return cfg
}

// Embedded reports whether errors should be forwarded to a host.
func (c Config) Embedded() bool {
	return c.HostURL != "" || c.JournalDSN != ""
}

// Options converts the config into client options.
func (c Config) Options() []Option {
	opts := []Option{WithAgentID(c.AgentID)}
	if c.Endpoint != "" {
		opts = append(opts, WithEndpoint(c.Endpoint))
	}
	if c.UserID != "" {
		opts = append(opts, WithUserID(c.UserID))
	}
	if c.Origin != "" {
		opts = append(opts, WithOrigin(c.Origin))
	}
	return opts
}
