package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

var (
	keysFlag      = pflag.StringP("keys", "k", "", "API keys, comma or newline separated")
	keysFileFlag  = pflag.String("keys-file", "", "Read API keys from a file (- for stdin)")
	topicFlag     = pflag.StringP("topic", "t", "", "Topic of the prompts")
	modeFlag      = pflag.StringP("mode", "m", "1", "Visual mode id or name (see --list-modes)")
	trendFlag     = pflag.String("trend", "", "Optional trend or style modifier")
	quantityFlag  = pflag.IntP("quantity", "n", 5, "Number of prompts to generate")
	formatFlag    = pflag.StringP("format", "f", "", "Export format: txt or html (default from EXPORT_FORMAT)")
	outFlag       = pflag.StringP("out", "o", "", "Export directory (default from EXPORT_DIRECTORY)")
	s3BucketFlag  = pflag.String("s3-bucket", "", "Upload the export to this S3 bucket instead of a local file")
	validateFlag  = pflag.Bool("validate", false, "Validate keys before the run and drop invalid ones")
	saveKeysFlag  = pflag.Bool("save-keys", false, "Save the surviving keys to the credential cache after the run")
	credFileFlag  = pflag.String("credentials-file", "", "Credential cache file (default from CREDENTIALS_FILE)")
	forgetFlag    = pflag.Bool("forget-keys", false, "Delete the credential cache and exit")
	retryFlag     = pflag.Int("retry-factor", 0, "Attempts per item = keys x retry factor (default from DISPATCH_RETRY_FACTOR)")
	providerFlag  = pflag.String("provider", "", "Provider type: gemini or openai (default from PROVIDER_TYPE)")
	logLevelFlag  = pflag.String("log-level", "", "Log level: debug, info, warn, error")
	listModesFlag = pflag.Bool("list-modes", false, "Print the visual modes and exit")
)

func init() {
	pflag.CommandLine.SortFlags = false
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "\nGenerate Midjourney prompts, rotating across API keys.\n\n %s --topic TOPIC [--keys KEYS] [flags]\n\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
}

func checkFlags() error {
	if *listModesFlag || *forgetFlag {
		return nil
	}
	if *topicFlag == "" {
		return fmt.Errorf("--topic is required")
	}
	if *keysFlag != "" && *keysFileFlag != "" {
		return fmt.Errorf("--keys and --keys-file are mutually exclusive")
	}
	if *retryFlag < 0 {
		return fmt.Errorf("--retry-factor must be positive")
	}
	return nil
}
