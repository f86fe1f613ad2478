package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"snowwhite/pkg/awsconf"
	"snowwhite/pkg/bus"
	"snowwhite/pkg/db"
	gos3 "snowwhite/pkg/s3"
	"snowwhite/pkg/telemetry"
	"snowwhite/services/snowwhite"
	"snowwhite/services/snowwhite/internal/config"
)

const (
	serviceName        = "snowwhite"
	httpTimeout        = 30 * time.Second
	telemetryShutdown  = 5 * time.Second
	defaultHistorySize = 20
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a run error to the process status: 2 when the command never
// reached the instances, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, snowwhite.ErrSubmission):
		return 2
	default:
		return 1
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFile string
		action     string
	)

	cmd := &cobra.Command{
		Use:           "snowwhite",
		Short:         "Quiet, wake or stop the Sidekiq workers of an Elastic Beanstalk application",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]string{}
			if action != "" {
				overrides["WORKER_ACTION"] = action
			}
			cfg, err := config.Load(configFile, overrides)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional YAML file of configuration keys, overridden by the environment")
	cmd.Flags().StringVar(&action, "action", "", "Worker action (quiet, wake or stop); overrides WORKER_ACTION")
	cmd.AddCommand(newHistoryCommand())
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTelemetry, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdown)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	httpClient := telemetry.NewHTTPClient(httpTimeout)

	awsCfg, err := awsconf.Load(ctx, awsconf.Options{
		Region:     cfg.Region,
		Endpoint:   cfg.AWSEndpoint,
		HTTPClient: httpClient,
	})
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	identityCfg, err := awsconf.Load(ctx, awsconf.Options{
		Region:     cfg.IdentityRegion,
		Endpoint:   cfg.AWSEndpoint,
		HTTPClient: httpClient,
	})
	if err != nil {
		return fmt.Errorf("aws config for %s: %w", cfg.IdentityRegion, err)
	}

	ssmClient := ssm.NewFromConfig(awsCfg)

	sinks, closeSinks := openSinks(ctx, cfg, awsCfg, logger)
	defer closeSinks()

	runner, err := snowwhite.NewRunner(cfg, snowwhite.Deps{
		Identity: snowwhite.NewIdentityResolver(httpClient, snowwhite.MetadataURL(),
			ecs.NewFromConfig(identityCfg), iam.NewFromConfig(identityCfg), logger),
		Targets: snowwhite.NewTargetEnumerator(elasticbeanstalk.NewFromConfig(awsCfg), logger),
		Dispatcher: snowwhite.NewDispatcher(cloudformation.NewFromConfig(awsCfg), ssmClient, cfg.DocumentStack,
			map[snowwhite.Action]string{
				snowwhite.ActionQuiet: cfg.Documents.Quiet,
				snowwhite.ActionWake:  cfg.Documents.Wake,
				snowwhite.ActionStop:  cfg.Documents.Stop,
			}, logger),
		Tracker:  snowwhite.NewTracker(ssmClient, cfg.Poll.MaxRounds, cfg.Poll.Interval, logger),
		Notifier: snowwhite.NewNotifier(httpClient, cfg.Slack.WebhookURL, logger),
		Sinks:    sinks,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Printf("INFO run %s finished: %d succeeded, %d failed, %d pending after %d rounds",
		report.RunID,
		len(report.Result.Succeeded()),
		len(report.Result.Failed()),
		len(report.Result.Pending()),
		report.Result.Rounds)
	return nil
}

// openSinks connects the configured sinks. A sink that cannot be opened is
// skipped with a warning.
func openSinks(ctx context.Context, cfg config.Config, awsCfg aws.Config, logger *log.Logger) ([]snowwhite.Sink, func()) {
	var (
		sinks   []snowwhite.Sink
		closers []func()
	)

	if cfg.Sinks.NATSURL != "" {
		b, err := bus.New(cfg.Sinks.NATSURL)
		if err != nil {
			logger.Printf("WARN nats sink disabled: %v", err)
		} else {
			sinks = append(sinks, snowwhite.NewEventPublisher(b))
			closers = append(closers, b.Close)
		}
	}

	if cfg.Sinks.DatabaseURL != "" {
		if store, closeStore, err := openHistory(ctx, cfg.Sinks.DatabaseURL); err != nil {
			logger.Printf("WARN postgres sink disabled: %v", err)
		} else {
			sinks = append(sinks, store)
			closers = append(closers, closeStore)
		}
	}

	if cfg.Sinks.ReportBucket != "" {
		client, err := gos3.NewClientFromEnv(awsCfg)
		if err != nil {
			logger.Printf("WARN s3 sink disabled: %v", err)
		} else {
			sinks = append(sinks, snowwhite.NewReportArchiver(client, cfg.Sinks.ReportBucket))
		}
	}

	if cfg.Sinks.PushgatewayURL != "" {
		sinks = append(sinks, snowwhite.NewMetricsPusher(cfg.Sinks.PushgatewayURL))
	}

	return sinks, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func openHistory(ctx context.Context, dsn string) (*snowwhite.HistoryStore, func(), error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := snowwhite.NewHistoryStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}

func newHistoryCommand() *cobra.Command {
	var (
		databaseURL string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent runs recorded in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			store, closeStore, err := openHistory(ctx, databaseURL)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	cmd.Flags().IntVar(&limit, "limit", defaultHistorySize, "Maximum number of runs to list")
	return cmd
}

func printHistory(out io.Writer, records []snowwhite.RunRecord) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tACTION\tAPPLICATION\tREGION\tACTOR\tTARGETS\tOK\tFAILED\tPENDING\tROUNDS\tRUN")
	for _, r := range records {
		actor := r.Actor
		if actor == "" {
			actor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.UTC().Format(time.RFC3339),
			r.Action, r.Application, r.Region, actor,
			r.Targets, r.Succeeded, r.Failed, r.Pending, r.Rounds,
			r.ID)
	}
	return tw.Flush()
}
