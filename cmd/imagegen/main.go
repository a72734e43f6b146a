// imagegen generates an image from a text prompt on ModelScope and saves it
// locally or to an S3-compatible bucket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"imagegen/internal/apperrors"
	"imagegen/internal/config"
	"imagegen/internal/credentials"
	"imagegen/internal/job"
	"imagegen/internal/modelscope"
	"imagegen/internal/notify"
	"imagegen/internal/observability"
	"imagegen/internal/storage"
	"imagegen/pkg/cloudevent"
)

func main() {
	err := run(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(apperrors.ExitOK)
	}
	if err != nil {
		slog.Error("Image generation failed", "error", err)
	}
	os.Exit(apperrors.ExitCode(err))
}

// options are the per-run settings taken from the command line.
type options struct {
	request     job.Request
	maxAttempts int
	interval    time.Duration
	maxWait     time.Duration
}

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// parseArgs reads `imagegen [flags] <prompt> [output_path] [model]`, using
// cfg for everything the command line leaves out.
func parseArgs(args []string, cfg *config.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("imagegen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: imagegen [flags] <prompt> [output_path] [model]")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	var loras multiFlag
	fs.Var(&loras, "lora", "LoRA adapter, either a single name or name=weight (repeatable)")
	attempts := fs.Int("attempts", cfg.Poll.MaxAttempts, "maximum status checks")
	interval := fs.Duration("interval", cfg.Poll.Interval, "delay between status checks")
	maxWait := fs.Duration("max-wait", cfg.Poll.MaxWait, "wall-clock limit for polling (0 disables)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, apperrors.Validation("args", err.Error())
	}

	if *attempts <= 0 {
		return nil, apperrors.Validation("attempts", "-attempts must be positive")
	}
	if *interval <= 0 {
		return nil, apperrors.Validation("interval", "-interval must be positive")
	}
	if *maxWait < 0 {
		return nil, apperrors.Validation("max-wait", "-max-wait must not be negative")
	}

	rest := fs.Args()
	if len(rest) == 0 || len(rest) > 3 {
		fs.Usage()
		return nil, apperrors.Validation("args", "expected <prompt> [output_path] [model]")
	}

	parsed, err := job.ParseLoRAs(loras)
	if err != nil {
		return nil, err
	}

	opts := &options{
		request: job.Request{
			Prompt: rest[0],
			Model:  cfg.ModelScope.Model,
			LoRAs:  parsed,
			Output: cfg.OutputPath,
		},
		maxAttempts: *attempts,
		interval:    *interval,
		maxWait:     *maxWait,
	}
	if len(rest) > 1 {
		opts.request.Output = rest[1]
	}
	if len(rest) > 2 {
		opts.request.Model = rest[2]
	}
	return opts, nil
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat))

	opts, err := parseArgs(args, cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cfg.MetricsFile != "" {
			if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				slog.Warn("Failed to write metrics file", "path", cfg.MetricsFile, "error", err)
			}
		}
		_ = metrics.Shutdown(context.Background())
	}()

	configPath := credentials.DefaultConfigPath()
	tokens := credentials.NewChain(configPath,
		credentials.Static(cfg.APIKeyFromFile()),
		credentials.File{Path: configPath},
		credentials.Env{},
		credentials.NewPrompt(os.Stdin, os.Stderr, configPath),
	)

	// Keep the interface nil when object storage is not configured.
	var object storage.Sink
	s3, err := storage.NewS3(cfg.Storage)
	if err != nil {
		return err
	}
	if s3 != nil {
		object = s3
	}

	var notifier job.Notifier
	if n := notify.New(cfg.Callback.URL, cfg.Callback.Key, cloudevent.NewSender(cfg.Callback.Timeout)); n != nil {
		notifier = n
	}

	client := modelscope.NewClient(cfg.ModelScope.BaseURL, cfg.ModelScope.HTTPTimeout)
	runner, err := job.NewRunner(job.RunnerConfig{
		Remote: client,
		Tokens: tokens,
		Poller: job.NewPoller(client, job.PollerConfig{
			MaxAttempts: opts.maxAttempts,
			Interval:    opts.interval,
			MaxWait:     opts.maxWait,
			Metrics:     metrics,
		}),
		Resolver: job.NewResolver(&http.Client{Timeout: cfg.ModelScope.HTTPTimeout}, storage.NewRouter(object), metrics),
		Notifier: notifier,
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, &opts.request)
	if err != nil {
		return err
	}

	fmt.Println(res.Location)
	return nil
}
