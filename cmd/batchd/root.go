package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"batchd/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries state shared by all subcommands once the root pre-run has
// loaded configuration and built the logger.
type app struct {
	out       io.Writer
	cfg       config.Config
	log       zerolog.Logger
	cfgPath   string
	logLevel  string
	logFormat string
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:           "batchd",
		Short:         "Batched multi-conversation generation over a shared KV cache",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", envStr("BATCHD_CONFIG", ""), "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", envStr("BATCHD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", envStr("BATCHD_LOG_FORMAT", "console"), "Log format: console|json")

	root.AddCommand(
		newRunCmd(a),
		newGuidanceCmd(a),
		newGrammarCmd(a),
		newModelsCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(a.out, version)
			},
		},
	)
	return root
}

func (a *app) init() error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(a.logLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	var w io.Writer = os.Stderr
	switch a.logFormat {
	case "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	default:
		return fmt.Errorf("invalid --log-format %q", a.logFormat)
	}
	a.log = zerolog.New(w).Level(lvl).With().Timestamp().Logger()

	if a.cfgPath != "" {
		cfg, err := config.Load(a.cfgPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}
	a.cfg.ApplyDefaults()
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// splitCSV splits a comma separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
