package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"promptforge/internal/config"
	"promptforge/internal/credstore"
	"promptforge/internal/dispatch"
	"promptforge/internal/export"
	"promptforge/internal/keypool"
	"promptforge/internal/logging"
	"promptforge/internal/prompt"
)

func main() {
	pflag.Parse()
	if err := checkFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		pflag.Usage()
		os.Exit(2)
	}

	if *listModesFlag {
		for _, m := range prompt.Modes() {
			fmt.Printf("%s  %-24s --ar %-5s %s\n", m.ID, m.Name, m.AspectRatio, m.Keywords)
		}
		return
	}

	if *forgetFlag {
		if err := forgetKeys(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Everything that can be checked locally is checked before any network call.
	items, err := prompt.Build(prompt.Request{
		Topic:    *topicFlag,
		ModeID:   *modeFlag,
		Trend:    *trendFlag,
		Quantity: *quantityFlag,
	}, cfg.Dispatch.MaxQuantity)
	if err != nil {
		return err
	}

	manual, err := readManualKeys()
	if err != nil {
		return err
	}

	shape := keypool.ShapeFor(cfg.Provider.Type)
	keys, source, err := resolveKeys(cfg, manual, shape)
	if err != nil {
		return err
	}
	logging.Infof("Using %d key(s) from %s", len(keys), source)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := dispatch.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			logging.Warningf("Shutdown: %v", err)
		}
	}()

	pool, err := buildPool(ctx, rt, keys)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Generating %d prompt(s) on %q with %d key(s)...\n", len(items), items[0].Topic, pool.Len())
	session, results, runErr := rt.Run(ctx, pool, items)
	if session == nil {
		return runErr
	}
	logging.Infof("Run %s made %d attempt(s), %d key(s) left", session.RunID(), session.Attempts(), session.Pool().Len())
	for i, r := range results {
		fmt.Printf("%d. [%s] %s\n\n", i+1, r.Label, r.Text)
	}

	if len(results) > 0 {
		location, err := exportResults(ctx, cfg, items[0].Topic, results)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d prompt(s) to %s\n", len(results), location)
	}

	if *saveKeysFlag {
		if err := saveKeys(cfg, pool); err != nil {
			logging.Errorf("Failed to save credentials: %v", err)
		}
	}

	if runErr != nil {
		var exhausted *dispatch.ExhaustedError
		if errors.As(runErr, &exhausted) {
			return fmt.Errorf("stopped after %d of %d prompt(s): %w", len(results), len(items), runErr)
		}
		return runErr
	}
	return nil
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if *logLevelFlag != "" {
		level, ok := logging.ParseLevel(*logLevelFlag)
		if !ok {
			return nil, fmt.Errorf("unknown log level: %s", *logLevelFlag)
		}
		logging.SetLogLevel(level)
	}
	if *providerFlag != "" {
		cfg.Provider.Type = *providerFlag
	}
	if *retryFlag > 0 {
		cfg.Dispatch.RetryFactor = *retryFlag
	}
	if *formatFlag != "" {
		cfg.Export.Format = *formatFlag
	}
	if *outFlag != "" {
		cfg.Export.Directory = *outFlag
	}
	if *s3BucketFlag != "" {
		cfg.Export.S3Bucket = *s3BucketFlag
	}
	if *credFileFlag != "" {
		cfg.Credentials.FilePath = *credFileFlag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readManualKeys() (string, error) {
	switch *keysFileFlag {
	case "":
		return *keysFlag, nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read keys from stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(*keysFileFlag)
		if err != nil {
			return "", fmt.Errorf("failed to read keys file: %w", err)
		}
		return string(data), nil
	}
}

// resolveKeys prefers the secrets source, then pasted keys, then the
// credential cache.
func resolveKeys(cfg *config.Config, manual string, shape keypool.Shape) ([]string, string, error) {
	keys, source := keypool.Resolve(cfg.Provider.SecretKeys, manual, shape)
	if len(keys) > 0 {
		return keys, string(source), nil
	}
	if parsed := keypool.Parse(manual, shape); parsed.Rejected > 0 {
		return nil, "", fmt.Errorf("%w: %d candidate(s) did not look like %s keys", keypool.ErrMalformedCredentials, parsed.Rejected, cfg.Provider.Type)
	}

	if cfg.Credentials.FilePath != "" {
		snap, err := credstore.New(cfg.Credentials.FilePath, cfg.Credentials.Passphrase).Load()
		switch {
		case err == nil && len(snap.Keys()) > 0:
			return snap.Keys(), "credential cache " + cfg.Credentials.FilePath, nil
		case err != nil && !errors.Is(err, credstore.ErrNotFound):
			return nil, "", err
		}
	}
	return nil, "", keypool.ErrNoCredentials
}

func buildPool(ctx context.Context, rt *dispatch.Runtime, keys []string) (*keypool.Pool, error) {
	if !*validateFlag {
		return keypool.NewPool(keys)
	}

	creds := rt.Validate(ctx, keys)
	for _, c := range creds {
		line := fmt.Sprintf("  %s  %-12s", c.Fingerprint(), c.Status)
		if c.Model != "" {
			line += "  " + c.Model
		}
		if c.LastError != "" && c.Status != keypool.StatusValid {
			line += "  (" + c.LastError + ")"
		}
		fmt.Fprintln(os.Stderr, line)
	}
	return keypool.NewPoolFromCredentials(creds)
}

func exportResults(ctx context.Context, cfg *config.Config, topic string, results []dispatch.Result) (string, error) {
	artifact, err := export.Render(cfg.Export.Format, topic, results)
	if err != nil {
		return "", err
	}

	var writer export.Writer = export.NewLocalWriter(cfg.Export.Directory)
	if cfg.Export.S3Bucket != "" {
		writer, err = export.NewS3Writer(ctx, cfg.Export.S3Bucket, cfg.Export.S3Region, cfg.Export.S3Prefix)
		if err != nil {
			return "", err
		}
	}
	return writer.Write(ctx, artifact)
}

func saveKeys(cfg *config.Config, pool *keypool.Pool) error {
	if cfg.Credentials.FilePath == "" {
		return fmt.Errorf("no credential cache configured (set CREDENTIALS_FILE or --credentials-file)")
	}
	snap, err := credstore.New(cfg.Credentials.FilePath, cfg.Credentials.Passphrase).Save(pool.Credentials())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Saved %d key(s) to %s\n", len(snap.Credentials), cfg.Credentials.FilePath)
	return nil
}

func forgetKeys() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Credentials.FilePath == "" {
		return fmt.Errorf("no credential cache configured (set CREDENTIALS_FILE or --credentials-file)")
	}
	if err := credstore.New(cfg.Credentials.FilePath, "").Clear(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Removed %s\n", cfg.Credentials.FilePath)
	return nil
}
