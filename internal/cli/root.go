// Package cli implements the mcinstall command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/aayushdutt/mcinstall/internal/api"
	"github.com/aayushdutt/mcinstall/internal/config"
	"github.com/aayushdutt/mcinstall/internal/download"
	"github.com/aayushdutt/mcinstall/internal/logging"
)

var (
	dataDir     string
	concurrency int
	proxy       string
	logLevel    string
	logFormat   string
	logFile     string
	offline     bool
	plain       bool
)

var rootCmd = &cobra.Command{
	Use:           "mcinstall",
	Short:         "Resolve and install Minecraft versions",
	Long:          "Resolve Minecraft version profiles, including inherited loader profiles, and download the client, libraries, natives and assets they need.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isUsageError(err) {
			if cmd, _, findErr := rootCmd.Find(os.Args[1:]); findErr == nil && cmd != nil {
				_ = cmd.Usage()
			} else {
				_ = rootCmd.Usage()
			}
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return wrapUsageError(err)
	})

	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory (default: platform data dir)")
	rootCmd.PersistentFlags().IntVarP(&concurrency, "concurrency", "c", 0, fmt.Sprintf("Parallel downloads (%d-%d)", download.MinConcurrency, download.MaxConcurrency))
	rootCmd.PersistentFlags().StringVar(&proxy, "proxy", "", "Proxy URL, e.g. socks5://127.0.0.1:1080")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use only cached version metadata")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Disable the progress view")
}

// env holds what every command needs.
type env struct {
	cfg     *config.Config
	log     *slog.Logger
	closers []io.Closer
}

func (e *env) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// setup loads the config, applies flag overrides and builds the logger.
// With tui set, logs are discarded unless --log-file is given.
func setup(cmd *cobra.Command, tui bool) (*env, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, wrapUsageError(err)
	}

	e := &env{cfg: cfg}
	var w io.Writer = os.Stderr
	color := isatty.IsTerminal(os.Stderr.Fd())
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %q: %w", logFile, err)
		}
		e.closers = append(e.closers, f)
		w = f
		color = false
	case tui:
		w = io.Discard
	}

	e.log, err = logging.New(w, level, cfg.LogFormat, color)
	if err != nil {
		_ = e.Close()
		return nil, wrapUsageError(err)
	}
	return e, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrency
	}
	if flags.Changed("proxy") {
		p, err := config.ParseProxy(proxy)
		if err != nil {
			return wrapUsageError(err)
		}
		cfg.Proxy = p
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	cfg.Normalize()
	return nil
}

// newStore builds the metadata store, sharing the download transport.
func (e *env) newStore() (*api.ManifestStore, error) {
	proxyURL, err := e.cfg.Proxy.URL()
	if err != nil {
		return nil, err
	}
	return api.NewManifestStore(api.StoreOptions{
		ManifestURL: e.cfg.ManifestURL,
		VersionsDir: e.cfg.VersionsDir,
		Offline:     offline,
		HTTPClient:  download.NewClient(proxyURL),
		Logger:      e.log,
	}), nil
}

type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

func (e *usageError) Unwrap() error {
	return e.err
}

func wrapUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &usageError{err: err}
}

func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if validate == nil {
			return nil
		}
		if err := validate(cmd, args); err != nil {
			return wrapUsageError(err)
		}
		return nil
	}
}

func isUsageError(err error) bool {
	var ue *usageError
	if errors.As(err, &ue) {
		return true
	}

	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command ")
}
