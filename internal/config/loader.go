package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr   *string
	LoggingLevel *string
	DriveCookie  *string
	StoreDataDir *string
}

// fileConfig mirrors Config but with pointer sections to detect presence.
type fileConfig struct {
	ListenAddr string `toml:"listen_addr"`

	WeCom    *wecomFileConfig    `toml:"wecom"`
	Drive    *driveFileConfig    `toml:"drive"`
	Transfer *transferFileConfig `toml:"transfer"`
	Search   *searchFileConfig   `toml:"search"`
	Cache    *cacheFileConfig    `toml:"cache"`
	Store    *storeFileConfig    `toml:"store"`
	Logging  *loggingFileConfig  `toml:"logging"`
	Menu     *menuFileConfig     `toml:"menu"`
}

type wecomFileConfig struct {
	CorpID         string `toml:"corp_id"`
	AgentID        string `toml:"agent_id"`
	Secret         string `toml:"secret"`
	Token          string `toml:"token"`
	EncodingAESKey string `toml:"encoding_aes_key"`
	APIBase        string `toml:"api_base"`
	TimeoutMS      int    `toml:"timeout_ms"`
}

type driveFileConfig struct {
	Cookie          string   `toml:"cookie"`
	APIBase         string   `toml:"api_base"`
	AccountBase     string   `toml:"account_base"`
	DefaultFolderID string   `toml:"default_folder_id"`
	SearchFolderID  string   `toml:"search_folder_id"`
	AdFID           string   `toml:"ad_fid"`
	BannedKeywords  []string `toml:"banned_keywords"`
	TimeoutMS       int      `toml:"timeout_ms"`
}

type transferFileConfig struct {
	TaskPollTries  int `toml:"task_poll_tries"`
	TaskPollMS     int `toml:"task_poll_ms"`
	SharePollTries int `toml:"share_poll_tries"`
	SharePollMS    int `toml:"share_poll_ms"`
}

type searchFileConfig struct {
	MaxDepth int `toml:"max_depth"`
	PageSize int `toml:"page_size"`
}

type cacheFileConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

type storeFileConfig struct {
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
}

type loggingFileConfig struct {
	Level string `toml:"level"`
}

type menuFileConfig struct {
	CreateOnStart *bool `toml:"create_on_start"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		ListenAddr: ":8888",
		WeCom: WeComConfig{
			APIBase:   "https://qyapi.weixin.qq.com",
			TimeoutMS: 10000,
		},
		Drive: DriveConfig{
			APIBase:         "https://drive-pc.quark.cn",
			AccountBase:     "https://pan.quark.cn",
			DefaultFolderID: "0",
			SearchFolderID:  "0",
			TimeoutMS:       60000,
		},
		Transfer: TransferConfig{
			TaskPollTries:  50,
			TaskPollMS:     750,
			SharePollTries: 30,
			SharePollMS:    500,
		},
		Search: SearchConfig{
			MaxDepth: 10,
			PageSize: 7,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: "./data",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Menu: MenuConfig{
			CreateOnStart: false,
		},
	}
}

// Load loads configuration with the following precedence:
//  1. Built-in defaults
//  2. TOML config file values
//  3. CLI flag overrides
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid
// TOML, Load returns an error (fail fast). Unknown TOML keys produce a
// warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := Default()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}

		var fc fileConfig
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}

		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.WeCom != nil {
		if fc.WeCom.CorpID != "" {
			cfg.WeCom.CorpID = fc.WeCom.CorpID
		}
		if fc.WeCom.AgentID != "" {
			cfg.WeCom.AgentID = fc.WeCom.AgentID
		}
		if fc.WeCom.Secret != "" {
			cfg.WeCom.Secret = fc.WeCom.Secret
		}
		if fc.WeCom.Token != "" {
			cfg.WeCom.Token = fc.WeCom.Token
		}
		if fc.WeCom.EncodingAESKey != "" {
			cfg.WeCom.EncodingAESKey = fc.WeCom.EncodingAESKey
		}
		if fc.WeCom.APIBase != "" {
			cfg.WeCom.APIBase = fc.WeCom.APIBase
		}
		if fc.WeCom.TimeoutMS != 0 {
			cfg.WeCom.TimeoutMS = fc.WeCom.TimeoutMS
		}
	}

	if fc.Drive != nil {
		if fc.Drive.Cookie != "" {
			cfg.Drive.Cookie = fc.Drive.Cookie
		}
		if fc.Drive.APIBase != "" {
			cfg.Drive.APIBase = fc.Drive.APIBase
		}
		if fc.Drive.AccountBase != "" {
			cfg.Drive.AccountBase = fc.Drive.AccountBase
		}
		if fc.Drive.DefaultFolderID != "" {
			cfg.Drive.DefaultFolderID = fc.Drive.DefaultFolderID
		}
		if fc.Drive.SearchFolderID != "" {
			cfg.Drive.SearchFolderID = fc.Drive.SearchFolderID
		}
		if fc.Drive.AdFID != "" {
			cfg.Drive.AdFID = fc.Drive.AdFID
		}
		if len(fc.Drive.BannedKeywords) > 0 {
			cfg.Drive.BannedKeywords = fc.Drive.BannedKeywords
		}
		if fc.Drive.TimeoutMS != 0 {
			cfg.Drive.TimeoutMS = fc.Drive.TimeoutMS
		}
	}

	if fc.Transfer != nil {
		if fc.Transfer.TaskPollTries > 0 {
			cfg.Transfer.TaskPollTries = fc.Transfer.TaskPollTries
		}
		if fc.Transfer.TaskPollMS > 0 {
			cfg.Transfer.TaskPollMS = fc.Transfer.TaskPollMS
		}
		if fc.Transfer.SharePollTries > 0 {
			cfg.Transfer.SharePollTries = fc.Transfer.SharePollTries
		}
		if fc.Transfer.SharePollMS > 0 {
			cfg.Transfer.SharePollMS = fc.Transfer.SharePollMS
		}
	}

	if fc.Search != nil {
		if fc.Search.MaxDepth > 0 {
			cfg.Search.MaxDepth = fc.Search.MaxDepth
		}
		if fc.Search.PageSize > 0 {
			cfg.Search.PageSize = fc.Search.PageSize
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
	}

	if fc.Menu != nil {
		if fc.Menu.CreateOnStart != nil {
			cfg.Menu.CreateOnStart = *fc.Menu.CreateOnStart
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.ListenAddr != nil && *f.ListenAddr != "" {
		cfg.ListenAddr = *f.ListenAddr
	}
	if f.LoggingLevel != nil && *f.LoggingLevel != "" {
		cfg.Logging.Level = *f.LoggingLevel
	}
	if f.DriveCookie != nil && *f.DriveCookie != "" {
		cfg.Drive.Cookie = *f.DriveCookie
	}
	if f.StoreDataDir != nil && *f.StoreDataDir != "" {
		cfg.Store.DataDir = *f.StoreDataDir
	}
}

// validate checks enum-like fields and credential formats.
func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Cache.Driver {
	case "", "memory", "redis":
		// valid
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory or redis", cfg.Cache.Driver)
	}

	switch cfg.Store.Driver {
	case "", "sqlite":
		// valid
	default:
		return fmt.Errorf("invalid store.driver %q: must be sqlite", cfg.Store.Driver)
	}

	if k := cfg.WeCom.EncodingAESKey; k != "" && len(k) != 43 {
		return fmt.Errorf("invalid wecom.encoding_aes_key: must be 43 characters, got %d", len(k))
	}

	if cfg.WeCom.APIBase != "" && !strings.HasPrefix(cfg.WeCom.APIBase, "http") {
		return fmt.Errorf("invalid wecom.api_base %q: must be an http(s) URL", cfg.WeCom.APIBase)
	}

	return nil
}
