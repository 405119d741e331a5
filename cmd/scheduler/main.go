// Command scheduler restores the conference schedule from SQLite, applies an
// optional seed plan as the acting user, saves the result and prints it as JSON.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/example/conference-scheduler/internal/access"
	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/config"
	"github.com/example/conference-scheduler/internal/logging"
	"github.com/example/conference-scheduler/internal/metrics"
	"github.com/example/conference-scheduler/internal/persistence"
	"github.com/example/conference-scheduler/internal/persistence/sqlite"
	"github.com/example/conference-scheduler/internal/seed"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "scheduler:", err)
		}
		os.Exit(1)
	}
}

type options struct {
	configPath string
	seedFile   string
	actingUser string
	sqliteDSN  string
	metricsOut string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("scheduler", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	flags.StringVar(&opts.seedFile, "seed", "", "YAML seed plan to apply")
	flags.StringVar(&opts.actingUser, "acting-user", "", "username the seed plan is applied as")
	flags.StringVar(&opts.sqliteDSN, "dsn", "", "SQLite database holding the snapshot")
	flags.StringVar(&opts.metricsOut, "metrics-out", "", "write metrics in text exposition format to this file")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

func (o options) apply(cfg config.Config) config.Config {
	if o.seedFile != "" {
		cfg.SeedFile = o.seedFile
	}
	if o.actingUser != "" {
		cfg.ActingUser = o.actingUser
	}
	if o.sqliteDSN != "" {
		cfg.SQLiteDSN = o.sqliteDSN
	}
	if o.metricsOut != "" {
		cfg.MetricsFile = o.metricsOut
	}
	return cfg
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg = opts.apply(cfg)

	logger, err := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	ctx = logging.ContextWithLogger(ctx, logger)

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(metrics.WithRegistry(registry), metrics.WithNamespace(cfg.MetricsNamespace))

	store, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	users := application.NewUserService(nil, logger)
	events := application.NewEventService(nil,
		application.WithUserDirectory(users),
		application.WithLogger(logger),
		application.WithRecorder(recorder),
	)
	gate := application.NewGate(events, users, logger)

	if err := restore(ctx, store, users, events, logger); err != nil {
		return err
	}

	actor, err := actingUser(ctx, users, cfg.ActingUser, logger)
	if err != nil {
		return err
	}

	var failures []seed.Failure
	if cfg.SeedFile != "" {
		plan, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return err
		}
		result, err := seed.Apply(ctx, gate, actor, plan)
		if err != nil {
			return err
		}
		for _, failure := range result.Failures {
			logger.Warn("seed item rejected", "item", failure.Item, "error", failure.Err, "error_kind", application.ErrorKind(failure.Err))
		}
		logger.Info("seed plan applied",
			"file", cfg.SeedFile,
			"users_created", len(result.UsersCreated),
			"events_scheduled", len(result.EventsScheduled),
			"registrations", result.Registrations,
			"failures", len(result.Failures),
		)
		failures = result.Failures
	}

	snapshot := persistence.Snapshot{
		Users:  persistence.UserRecords(users.Snapshot()),
		Events: persistence.EventRecords(events.Snapshot()),
	}
	if err := store.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}

	if err := writeReport(stdout, events.ListEvents(ctx), failures); err != nil {
		return err
	}

	if cfg.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func restore(ctx context.Context, store persistence.SnapshotStore, users *application.UserService, events *application.EventService, logger *slog.Logger) error {
	snapshot, err := store.LoadSnapshot(ctx)
	if errors.Is(err, persistence.ErrNotFound) {
		logger.Info("no stored snapshot, starting empty")
		return nil
	}
	if err != nil {
		return err
	}

	if err := users.Restore(snapshot.DomainUsers()); err != nil {
		return fmt.Errorf("restore users: %w", err)
	}
	if err := events.Restore(snapshot.DomainEvents()); err != nil {
		return fmt.Errorf("restore events: %w", err)
	}
	logger.Info("snapshot restored", "users", len(snapshot.Users), "events", len(snapshot.Events), "saved_at", snapshot.SavedAt)
	return nil
}

// actingUser resolves username. An empty registry gets it as its first
// organizer so a fresh database can be seeded.
func actingUser(ctx context.Context, users *application.UserService, username string, logger *slog.Logger) (access.User, error) {
	user, err := users.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, application.ErrNotFound) {
		return access.User{}, err
	}
	if len(users.ListUsers(ctx)) > 0 {
		return access.User{}, fmt.Errorf("acting user %q: %w", username, err)
	}

	user, err = users.CreateUser(ctx, application.UserInput{Username: username, Role: access.RoleOrganizer})
	if err != nil {
		return access.User{}, fmt.Errorf("bootstrap acting user: %w", err)
	}
	logger.Info("bootstrapped acting user", "username", user.Username, "role", string(user.Role))
	return user, nil
}
