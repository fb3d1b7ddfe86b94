// Package config provides configuration loading and validation.
package config

// Config is the fully resolved bot configuration.
type Config struct {
	ListenAddr string

	WeCom    WeComConfig
	Drive    DriveConfig
	Transfer TransferConfig
	Search   SearchConfig
	Cache    CacheConfig
	Store    StoreConfig
	Logging  LoggingConfig
	Menu     MenuConfig
}

// WeComConfig holds the WeCom application credentials and webhook secrets.
type WeComConfig struct {
	CorpID         string
	AgentID        string
	Secret         string
	Token          string
	EncodingAESKey string
	APIBase        string
	TimeoutMS      int
}

// EncryptionEnabled reports whether encrypted callback payloads are expected.
func (w *WeComConfig) EncryptionEnabled() bool {
	return w.EncodingAESKey != ""
}

// DriveConfig holds the cloud drive credentials and transfer destinations.
type DriveConfig struct {
	Cookie          string
	APIBase         string
	AccountBase     string
	DefaultFolderID string
	SearchFolderID  string
	AdFID           string
	BannedKeywords  []string
	TimeoutMS       int
}

// TransferConfig bounds the task polling loops.
type TransferConfig struct {
	TaskPollTries  int
	TaskPollMS     int
	SharePollTries int
	SharePollMS    int
}

// SearchConfig bounds the recursive search.
type SearchConfig struct {
	MaxDepth int
	PageSize int
}

// CacheConfig selects the cache driver and its options.
type CacheConfig struct {
	Driver  string
	Drivers map[string]any
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver  string
	DataDir string
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string
}

// MenuConfig controls the chat application menu bootstrap.
type MenuConfig struct {
	CreateOnStart bool
}

// Redacted returns a copy of the config safe for startup logging.
func (c *Config) Redacted() *Config {
	out := *c
	out.WeCom.Secret = redact(c.WeCom.Secret)
	out.WeCom.Token = redact(c.WeCom.Token)
	out.WeCom.EncodingAESKey = redact(c.WeCom.EncodingAESKey)
	out.Drive.Cookie = redact(c.Drive.Cookie)
	return &out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
