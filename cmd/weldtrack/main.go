package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/weldtrack/internal/adapters/server"
	servercommon "github.com/hylla/weldtrack/internal/adapters/server/common"
	"github.com/hylla/weldtrack/internal/adapters/storage/sqlite"
	"github.com/hylla/weldtrack/internal/app"
	"github.com/hylla/weldtrack/internal/config"
	"github.com/hylla/weldtrack/internal/platform"
	"github.com/spf13/cobra"
)

var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		stop()
		os.Exit(1)
	}
}

// run executes one CLI invocation against explicit writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cli holds global flag values shared by every subcommand.
type cli struct {
	stdout     io.Writer
	stderr     io.Writer
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	quiet      bool
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "weldtrack",
		Short: "Joint lifecycle ledger and production reporting for piping crews",
		Long: `weldtrack keeps the registry of fluids, lines and joints, records shop-floor
activity submissions, derives each joint's lifecycle from its status ledger,
and builds production, efficiency and capacity reports.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("weldtrack {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML (env WELDTRACK_CONFIG)")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database (env WELDTRACK_DB_PATH)")
	flags.StringVar(&c.appName, "app", platform.DefaultAppName, "application name for config/data path resolution (env WELDTRACK_APP_NAME)")
	flags.BoolVar(&c.devMode, "dev", version == "dev", "use dev mode paths (<app>-dev) and the workspace log file (env WELDTRACK_DEV_MODE)")
	flags.BoolVarP(&c.quiet, "quiet", "q", false, "mute console logs")

	root.AddCommand(
		c.pathsCommand(),
		c.fluidCommand(),
		c.lineCommand(),
		c.importCommand(),
		c.submitCommand(),
		c.reportCommand(),
		c.efficiencyCommand(),
		c.capacityCommand(),
		c.jointCommand(),
		c.eventCommand(),
		c.backupCommand(),
		c.restoreCommand(),
		c.serveCommand(),
	)
	return root
}

// runtimeSettings is the resolved view of flags, env and config for one invocation.
type runtimeSettings struct {
	appName    string
	devMode    bool
	paths      platform.Paths
	configPath string
	cfg        config.Config
}

// resolve applies precedence: flag, then WELDTRACK_* env, then config file, then defaults.
func (c *cli) resolve(cmd *cobra.Command) (runtimeSettings, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return runtimeSettings{}, err
	}

	flags := cmd.Flags()
	appName := c.appName
	if !flags.Changed("app") && strings.TrimSpace(env.AppName) != "" {
		appName = strings.TrimSpace(env.AppName)
	}
	devMode := c.devMode
	if v, ok := parseBool(env.DevMode); ok && !flags.Changed("dev") {
		devMode = v
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{AppName: appName, DevMode: devMode})
	if err != nil {
		return runtimeSettings{}, err
	}

	configPath := strings.TrimSpace(c.configPath)
	if configPath == "" {
		configPath = strings.TrimSpace(env.ConfigPath)
	}
	if configPath == "" {
		configPath = paths.ConfigPath
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return runtimeSettings{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if cfg, err = env.Apply(cfg); err != nil {
		return runtimeSettings{}, err
	}
	if dbPath := strings.TrimSpace(c.dbPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if strings.TrimSpace(cfg.Efficiency.BaselineFile) == "" {
		if _, statErr := os.Stat(paths.BaselinePath); statErr == nil {
			cfg.Efficiency.BaselineFile = paths.BaselinePath
		}
	}

	return runtimeSettings{
		appName:    appName,
		devMode:    devMode,
		paths:      paths,
		configPath: configPath,
		cfg:        cfg,
	}, nil
}

// session owns the opened store and services for one command flow.
type session struct {
	runtimeSettings
	logger     *runtimeLogger
	repo       *sqlite.Repository
	svc        *app.Service
	production servercommon.ProductionService
}

// open resolves settings, starts logging, opens sqlite and seeds baseline rates.
func (c *cli) open(cmd *cobra.Command) (*session, error) {
	settings, err := c.resolve(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newRuntimeLogger(c.stderr, settings.appName, settings.devMode, settings.cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.SetConsoleEnabled(!c.quiet)

	s := &session{runtimeSettings: settings, logger: logger}
	logger.Info("startup configuration resolved", "app", settings.appName, "dev_mode", settings.devMode, "command", cmd.Name())
	logger.Debug("runtime paths resolved", "config_path", settings.configPath, "data_dir", settings.paths.DataDir, "db_path", settings.cfg.Database.Path)
	logger.Info("configuration loaded", "config_path", settings.configPath, "db_path", settings.cfg.Database.Path, "log_level", settings.cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", settings.cfg.Database.Path)
	repo, err := sqlite.Open(settings.cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", settings.cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	s.repo = repo
	logger.Info("sqlite repository ready", "db_path", settings.cfg.Database.Path, "migrations", "ensured")

	s.svc = app.NewService(repo, uuid.NewString, time.Now, app.ServiceConfig{
		ImportBatchSize: settings.cfg.Import.BatchSize,
		PageSize:        settings.cfg.Storage.PageSize,
		Logger:          logger,
	})
	s.production = servercommon.NewAppServiceAdapter(s.svc)

	rates, err := settings.cfg.BaselineRates()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("resolve baseline rates: %w", err)
	}
	if len(rates) > 0 {
		if err := s.svc.SeedBaselineRates(cmd.Context(), rates); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("seed baseline rates: %w", err)
		}
		logger.Debug("baseline rates seeded", "materials", len(rates), "file", settings.cfg.Efficiency.BaselineFile)
	}
	return s, nil
}

func (s *session) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			s.logger.Warn("sqlite close failed", "db_path", s.cfg.Database.Path, "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close runtime log sink: %w", err))
	}
	return errors.Join(errs...)
}

// flow opens a session, runs fn, and logs the command lifecycle around it.
func (c *cli) flow(cmd *cobra.Command, fn func(context.Context, *session) error) (err error) {
	s, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil && err == nil {
			_, _ = fmt.Fprintf(c.stderr, "warning: %v\n", closeErr)
		}
	}()

	name := cmd.CommandPath()
	s.logger.Info("command flow start", "command", name)
	if err := fn(cmd.Context(), s); err != nil {
		s.logger.Error("command flow failed", "command", name, "err", err)
		return fmt.Errorf("run %s: %w", cmd.Name(), err)
	}
	s.logger.Info("command flow complete", "command", name)
	return nil
}

// parseBool reads an optional boolean env value; ok is false when unset or malformed.
func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
