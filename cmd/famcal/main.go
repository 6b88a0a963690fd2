package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/tartampluch/famcal/internal/calendar"
	"github.com/tartampluch/famcal/internal/config"
	"github.com/tartampluch/famcal/internal/feed"
	"github.com/tartampluch/famcal/internal/members"
	"github.com/tartampluch/famcal/internal/server"
	"github.com/tartampluch/famcal/internal/store"
)

var errUsage = errors.New("usage")

// main delegates to runMain so deferred calls (closing the log file) run
// before os.Exit.
func main() {
	os.Exit(runMain())
}

// runMain manages argument parsing, logging and exit codes.
func runMain() int {
	// -------------------------------------------------------------------------
	// 1. CLI Argument Parsing
	// -------------------------------------------------------------------------
	showVersion := flag.Bool(config.FlagVersion, false, config.FlagDescVersion)
	debugMode := flag.Bool(config.FlagDebug, false, config.FlagDescDebug)
	configPath := flag.String(config.FlagConfig, defaultConfigPath(), config.FlagDescConfig)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), config.MsgUsage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		printVersion()
		return config.ExitCodeSuccess
	}

	// -------------------------------------------------------------------------
	// 2. Logging Initialization
	// -------------------------------------------------------------------------
	logCloser := setupLogging(*debugMode)
	if logCloser != nil {
		defer func() {
			_ = logCloser.Close()
		}()
	}

	// -------------------------------------------------------------------------
	// 3. Context & Signal Handling
	// -------------------------------------------------------------------------
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logStartupInfo()

	// -------------------------------------------------------------------------
	// 4. Application Logic
	// -------------------------------------------------------------------------
	if err := run(ctx, *configPath, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			return config.ExitCodeUsage
		}
		slog.Error(config.ErrAppFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
		return config.ExitCodeError
	}

	slog.Info(config.MsgAppStop, config.LogKeyComponent, config.CompMain)
	return config.ExitCodeSuccess
}

// run loads settings, opens the database and dispatches the subcommand.
// With no subcommand the server is started.
func run(ctx context.Context, configPath string, args []string) error {
	cmd := config.CmdServe
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case config.CmdServe, config.CmdMigrate:
		if len(args) != 0 {
			return errUsage
		}
	case config.CmdImportMembers:
		if len(args) != 2 {
			return errUsage
		}
	default:
		return errUsage
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	settings.ApplyEnv()

	db, err := store.Open(settings.DatabaseDSN)
	if err != nil {
		return err
	}
	st := store.New(db)

	switch cmd {
	case config.CmdMigrate:
		return st.Migrate(ctx)
	case config.CmdImportMembers:
		im := &members.Importer{Fetcher: members.NewHTTPFetcher(), Store: st}
		_, err := im.Import(ctx, args[0], args[1])
		return err
	}
	return serve(ctx, settings, st)
}

// serve wires the feed renderer, the API and the refresh schedule, and
// blocks until ctx is cancelled.
func serve(ctx context.Context, settings *config.Settings, st *store.GormStore) error {
	if settings.JWTSecret == "" {
		return errors.New(config.ErrJWTSecretEmpty)
	}
	loc, err := settings.Location()
	if err != nil {
		return err
	}
	labels, err := feed.NewLabels(settings.Language)
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	srv := server.New(st, server.Options{
		Listen:    settings.Listen,
		JWTSecret: settings.JWTSecret,
		CacheSize: settings.FeedCacheSize,
		Clock:     calendar.RealClock{},
		Labels:    labels,
	})

	refresher, err := server.NewRefresher(srv, settings.RefreshCron, loc)
	if err != nil {
		return err
	}
	go refresher.Run(ctx)

	if err := srv.RefreshFeeds(ctx); err != nil {
		slog.Warn(config.MsgRefreshFailed,
			config.LogKeyComponent, config.CompMain,
			config.LogKeyError, err,
		)
	}

	return srv.Start(ctx)
}

// printVersion outputs the build information to stdout.
func printVersion() {
	fmt.Printf(config.MsgVersionOutput,
		config.AppName,
		config.Version,
		runtime.GOOS,
		runtime.GOARCH,
	)
}

// logStartupInfo logs environment details useful for debugging.
func logStartupInfo() {
	slog.Info(config.MsgAppStarting,
		config.LogKeyComponent, config.CompMain,
		slog.Group(config.LogKeyBuild,
			slog.String(config.LogKeyApp, config.AppName),
			slog.String(config.LogKeyVersion, config.Version),
			slog.String(config.LogKeyGoVer, runtime.Version()),
		),
		slog.Group(config.LogKeyEnv,
			slog.String(config.LogKeyOS, runtime.GOOS),
			slog.String(config.LogKeyArch, runtime.GOARCH),
			slog.Int(config.LogKeyPID, os.Getpid()),
		),
	)
}

// setupLogging writes JSON logs to stdout and, when possible, to a file in
// the user cache directory.
func setupLogging(debugMode bool) io.Closer {
	writers := []io.Writer{os.Stdout}
	var logFile *os.File

	if dir, err := appDir(os.UserCacheDir); err == nil {
		logPath := filepath.Join(dir, config.LogFileName)
		// O_TRUNC resets logs on restart.
		f, err := os.OpenFile(logPath, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, config.FilePermUserRW)
		if err == nil {
			writers = append(writers, f)
			logFile = f
		} else {
			fmt.Fprintf(os.Stderr, config.MsgLogWarning, config.ErrLogFile, logPath, err)
		}
	}

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level:     level,
		AddSource: debugMode,
	}))
	slog.SetDefault(logger)

	if logFile == nil {
		return nil
	}
	return logFile
}

// defaultConfigPath is <user config dir>/<app id>/config.yaml, or the
// working directory when no config dir exists.
func defaultConfigPath() string {
	dir, err := appDir(os.UserConfigDir)
	if err != nil {
		return config.ConfigFileName
	}
	return filepath.Join(dir, config.ConfigFileName)
}

// appDir creates the application directory under base with 0700.
func appDir(base func() (string, error)) (string, error) {
	root, err := base()
	if err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCacheDir, err)
	}
	dir := filepath.Join(root, config.AppID)
	if err := os.MkdirAll(dir, config.DirPermUserRWX); err != nil {
		return "", fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}
	return dir, nil
}
