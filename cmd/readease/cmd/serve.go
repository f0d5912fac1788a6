package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/wudi/readease/internal/config"
	"github.com/wudi/readease/internal/server"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "serve the readease api",
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(cmd, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

func init() {
	cmdReadease.AddCommand(cmdServe)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := config.Parse(readeaseOpts.config, readeaseOpts.envFile)
	if err != nil {
		return errors.Wrapf(err, "cannot parse config")
	}
	if c.Debug {
		log.Logger = log.Level(zerolog.DebugLevel)
	}

	s, err := server.NewServer(ctx, log.Logger, c)
	if err != nil {
		return errors.Wrapf(err, "failed to create server")
	}

	return errors.WithStack(s.Run(ctx))
}
