package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X".
var Version = "v0.0.0-dev"

func init() {
	cw := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.With().Stack().Caller().Logger().Level(zerolog.InfoLevel).Output(cw)
}

var cmdReadease = &cobra.Command{
	Use:     "readease",
	Short:   "readease",
	Version: Version,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		if readeaseOpts.debug {
			log.Logger = log.Level(zerolog.DebugLevel)
		}
	},
	Run: func(c *cobra.Command, args []string) {
		if err := c.Help(); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type readeaseOptions struct {
	config  string
	envFile string
	debug   bool
}

var readeaseOpts readeaseOptions

func init() {
	flags := cmdReadease.PersistentFlags()

	flags.StringVar(&readeaseOpts.config, "config", "", "config file path")
	flags.StringVar(&readeaseOpts.envFile, "env-file", "", "dotenv file path (defaults to .env when present)")
	flags.BoolVarP(&readeaseOpts.debug, "debug", "d", false, "debug")
}

func Execute() {
	if err := cmdReadease.Execute(); err != nil {
		os.Exit(1)
	}
}
