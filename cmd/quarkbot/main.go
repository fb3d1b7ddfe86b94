// Command quarkbot runs the WeCom webhook bot that drives a Quark
// cloud drive account: transferring shared links, minting fresh share
// links, and searching the drive from chat.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wecom-tools/quarkbot/internal/config"
	"github.com/wecom-tools/quarkbot/internal/conversation"
	"github.com/wecom-tools/quarkbot/internal/dedup"
	"github.com/wecom-tools/quarkbot/internal/platform/cache"
	_ "github.com/wecom-tools/quarkbot/internal/platform/cache/loader"
	"github.com/wecom-tools/quarkbot/internal/platform/httpclient"
	"github.com/wecom-tools/quarkbot/internal/platform/logutil"
	"github.com/wecom-tools/quarkbot/internal/quark"
	"github.com/wecom-tools/quarkbot/internal/search"
	"github.com/wecom-tools/quarkbot/internal/server"
	"github.com/wecom-tools/quarkbot/internal/store"
	_ "github.com/wecom-tools/quarkbot/internal/store/sqlite"
	"github.com/wecom-tools/quarkbot/internal/transfer"
	"github.com/wecom-tools/quarkbot/internal/wecom"
)

// dedupWindow is how long a (sender, payload) pair stays admitted.
const dedupWindow = 10 * time.Second

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	listenAddr := flag.String("listen", "", "listen address override")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	driveCookie := flag.String("cookie", "", "drive cookie override")
	dataDir := flag.String("data-dir", "", "data directory override")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:   optFlag(listenAddr),
			LoggingLevel: optFlag(logLevel),
			DriveCookie:  optFlag(driveCookie),
			StoreDataDir: optFlag(dataDir),
		},
		Logger: bootLogger,
	})
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logutil.ParseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", "config", fmt.Sprintf("%+v", cfg.Redacted()))

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	st, err := store.New(&store.DriverConfig{
		Driver:  cfg.Store.Driver,
		DataDir: cfg.Store.DataDir,
	})
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	c, err := cache.New(cfg.Cache.Driver, cfg.Cache.Drivers)
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer c.Close()

	wecomHTTP := httpclient.New(httpclient.Options{
		Timeout: time.Duration(cfg.WeCom.TimeoutMS) * time.Millisecond,
	})
	driveHTTP := httpclient.New(httpclient.Options{
		Timeout: time.Duration(cfg.Drive.TimeoutMS) * time.Millisecond,
	})

	// The stored credential wins over the configured one so a cookie set
	// through chat survives restarts.
	cookie := cfg.Drive.Cookie
	if stored, err := st.GetSetting(ctx, store.SettingDriveCookie); err == nil && stored != "" {
		cookie = stored
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to read stored drive cookie", "error", err)
	}

	drive := quark.NewClient(quark.Config{
		APIBase:           cfg.Drive.APIBase,
		AccountBase:       cfg.Drive.AccountBase,
		Cookie:            cookie,
		TaskPollTries:     cfg.Transfer.TaskPollTries,
		TaskPollInterval:  time.Duration(cfg.Transfer.TaskPollMS) * time.Millisecond,
		SharePollTries:    cfg.Transfer.SharePollTries,
		SharePollInterval: time.Duration(cfg.Transfer.SharePollMS) * time.Millisecond,
	}, driveHTTP, logger)

	keywords := transfer.NewKeywords(cfg.Drive.BannedKeywords)
	if persisted, err := st.ListBannedKeywords(ctx); err != nil {
		logger.Warn("failed to load banned keywords", "error", err)
	} else {
		keywords.Add(persisted)
	}

	orch := transfer.New(drive, st, keywords, transfer.Options{
		DestFID: cfg.Drive.DefaultFolderID,
		AdFID:   cfg.Drive.AdFID,
	}, logger)

	gateway := wecom.NewGateway(wecom.GatewayConfig{
		CorpID:  cfg.WeCom.CorpID,
		AgentID: cfg.WeCom.AgentID,
		Secret:  cfg.WeCom.Secret,
		APIBase: cfg.WeCom.APIBase,
	}, wecomHTTP, c, logger)

	var crypt *wecom.MsgCrypt
	if cfg.WeCom.EncryptionEnabled() {
		crypt, err = wecom.NewMsgCrypt(cfg.WeCom.EncodingAESKey, cfg.WeCom.CorpID, logger)
		if err != nil {
			return fmt.Errorf("message crypt: %w", err)
		}
	}

	srv, err := server.New(cfg, logger, &server.Deps{
		Verifier:     wecom.NewVerifier(cfg.WeCom.Token, logger),
		Gateway:      gateway,
		Guard:        dedup.New(dedupWindow),
		States:       conversation.NewStore(),
		Orchestrator: orch,
		Search:       search.New(drive, cfg.Search.MaxDepth, logger),
		Drive:        drive,
		Crypt:        crypt,
		Store:        st,
		SetCookie:    drive.SetCookie,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	if cfg.Menu.CreateOnStart {
		bootstrapMenu(ctx, gateway, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// bootstrapMenu replaces the chat application menu. Failures are
// logged, never fatal: the bot still answers typed commands.
func bootstrapMenu(ctx context.Context, gateway *wecom.Gateway, logger *slog.Logger) {
	if !gateway.Configured() {
		logger.Warn("menu bootstrap skipped, messaging credentials missing")
		return
	}

	buttons := []wecom.MenuButton{
		{Type: "click", Name: "Transfer", Key: server.MenuTransferShare},
		{Type: "click", Name: "Search", Key: server.MenuSearch},
		{Name: "More", SubButton: []wecom.MenuButton{
			{Type: "click", Name: "Help", Key: server.MenuHelp},
			{Type: "click", Name: "Verify login", Key: server.MenuVerify},
			{Type: "click", Name: "Block keywords", Key: server.MenuAddBan},
			{Type: "click", Name: "Scan recent", Key: server.MenuScanBan},
		}},
	}
	if err := gateway.CreateMenu(ctx, buttons); err != nil {
		logger.Warn("failed to create application menu", "error", err)
		return
	}
	logger.Info("application menu created")
}

// optFlag maps an empty flag value to nil so it does not override.
func optFlag(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
