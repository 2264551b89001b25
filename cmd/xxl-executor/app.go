package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	executor "github.com/jdziat/xxljob-executor"
	"github.com/jdziat/xxljob-executor/pkg/joblog"
	"github.com/jdziat/xxljob-executor/pkg/metrics"
	"github.com/jdziat/xxljob-executor/pkg/server"
)

const envPrefix = "XXL_EXECUTOR"

// settings is the resolved CLI configuration.
type settings struct {
	AdminAddresses     string
	AccessToken        string
	AppName            string
	IP                 string
	Port               int
	BasePath           string
	LogPath            string
	LogDSN             string
	LogRetentionDays   int
	LogLineMax         uint64
	InsecureSkipVerify bool
	PoolSize           int
	Metrics            bool
	Tracing            bool
	LogLevel           slog.Level
	LogFormat          string
	ShutdownTimeout    time.Duration
}

func submain(ctx context.Context) int {
	cmd := newRootCommand()
	ctx = withSignalCancel(ctx)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "xxl-executor",
		Short:         "xxl-executor runs job handlers on behalf of an xxl-job coordinator",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Register with a local coordinator on an automatically chosen port
  xxl-executor --admin-addresses http://127.0.0.1:8080/xxl-job-admin --app-name xxl-job-executor-sample

  # Same, configured from the environment, with execution logs and metrics
  XXL_EXECUTOR_ADMIN_ADDRESSES=http://127.0.0.1:8080/xxl-job-admin \
  XXL_EXECUTOR_ACCESS_TOKEN=default_token \
  xxl-executor --log-path ./xxl-logs --metrics
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfigFile(v); err != nil {
				return err
			}
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			logger := newLogger(s, cmd.ErrOrStderr())
			slog.SetDefault(logger)
			return runExecutor(cmd.Context(), s, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("admin-addresses", "", "comma-separated coordinator base URLs (required)")
	flags.String("access-token", "", "shared access token for coordinator calls")
	flags.String("app-name", "xxl-job-executor-sample", "executor group name announced to the coordinator")
	flags.String("ip", "", "advertised IP address (auto-detected when empty)")
	flags.Int("port", 0, "listen and advertised port (first free port from 9999 when 0)")
	flags.String("base-path", "", "path prefix for inbound endpoints")
	flags.String("log-path", "", "directory for the execution log database")
	flags.String("log-dsn", "", "execution log database DSN; a postgres:// URL selects PostgreSQL")
	flags.Int("log-retention-days", 30, "days to keep execution logs (0 keeps them forever)")
	flags.String("log-line-max", humanizeBytes(joblog.DefaultMaxLineBytes), "maximum stored size of one execution log line")
	flags.Bool("insecure-skip-verify", false, "skip TLS verification on coordinator calls")
	flags.Int("pool-size", 4, "number of cooperative worker goroutines")
	flags.Bool("metrics", false, "serve Prometheus metrics on GET /metrics")
	flags.Bool("tracing", false, "enable OpenTelemetry HTTP instrumentation")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")
	flags.Duration("shutdown-timeout", 10*time.Second, "time allowed for deregistration and draining on shutdown")

	bindFlags(v, flags)
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func loadConfigFile(v *viper.Viper) error {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

func loadSettings(v *viper.Viper) (settings, error) {
	s := settings{
		AdminAddresses:     strings.TrimSpace(v.GetString("admin-addresses")),
		AccessToken:        v.GetString("access-token"),
		AppName:            strings.TrimSpace(v.GetString("app-name")),
		IP:                 strings.TrimSpace(v.GetString("ip")),
		Port:               v.GetInt("port"),
		BasePath:           v.GetString("base-path"),
		LogPath:            strings.TrimSpace(v.GetString("log-path")),
		LogDSN:             strings.TrimSpace(v.GetString("log-dsn")),
		LogRetentionDays:   v.GetInt("log-retention-days"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		PoolSize:           v.GetInt("pool-size"),
		Metrics:            v.GetBool("metrics"),
		Tracing:            v.GetBool("tracing"),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString("log-format"))),
		ShutdownTimeout:    v.GetDuration("shutdown-timeout"),
	}
	if s.AdminAddresses == "" {
		return settings{}, errors.New("--admin-addresses is required")
	}
	if s.AppName == "" {
		return settings{}, errors.New("--app-name must not be empty")
	}

	if raw := strings.TrimSpace(v.GetString("log-line-max")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return settings{}, fmt.Errorf("parse log-line-max: %w", err)
		}
		s.LogLineMax = size
	}

	if err := s.LogLevel.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return settings{}, fmt.Errorf("parse log-level: %w", err)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return settings{}, fmt.Errorf("unknown log-format %q", s.LogFormat)
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 10 * time.Second
	}
	if s.LogDSN == "" && s.LogPath != "" {
		s.LogDSN = joblog.PathDSN(s.LogPath)
	}
	return s, nil
}

func (s settings) config() executor.Config {
	return executor.Config{
		AdminAddresses:     s.AdminAddresses,
		AccessToken:        s.AccessToken,
		AppName:            s.AppName,
		IP:                 s.IP,
		Port:               s.Port,
		BasePath:           s.BasePath,
		LogPath:            s.LogPath,
		LogRetentionDays:   s.LogRetentionDays,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
}

func runExecutor(ctx context.Context, s settings, logger *slog.Logger) error {
	cfg, err := executor.NewConfig(s.config())
	if err != nil {
		return err
	}

	opts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithPoolSize(s.PoolSize),
		executor.WithTracing(s.Tracing),
	}

	if s.LogDSN != "" {
		store, err := executor.OpenLogStore(s.LogDSN,
			joblog.WithLogger(logger),
			joblog.WithMaxLineBytes(int(s.LogLineMax)))
		if err != nil {
			return err
		}
		opts = append(opts, executor.WithLogStore(store))
		logger.Info("execution logs enabled",
			"retention_days", cfg.LogRetentionDays,
			"line_max", humanizeBytes(int64(s.LogLineMax)))
	}

	if s.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts,
			executor.WithMetrics(reg),
			executor.WithServerOptions(server.WithExtraRoute("GET /metrics", metrics.Handler(reg))))
	}

	client, err := executor.New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := registerDemoHandlers(client); err != nil {
		_ = client.Stop(context.Background())
		return err
	}

	started := time.Now()
	<-ctx.Done()
	logger.Info("shutting down", "uptime", humanize.RelTime(started, time.Now(), "", ""))

	stopCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	return client.Stop(stopCtx)
}

func newLogger(s settings, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.LogLevel}
	var h slog.Handler
	if s.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("app", "xxl-executor")
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
