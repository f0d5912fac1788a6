package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/wudi/readease/internal/config"
	"github.com/wudi/readease/internal/server"
)

var cmdCheck = &cobra.Command{
	Use:   "check",
	Short: "verify the tesseract binary resolves and the listen address is bindable",
	Run: func(cmd *cobra.Command, args []string) {
		if err := check(cmd.Context()); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

func init() {
	cmdReadease.AddCommand(cmdCheck)
}

// pather is implemented by engines running an external binary.
type pather interface {
	Path() (string, error)
}

func check(ctx context.Context) error {
	c, err := config.Parse(readeaseOpts.config, readeaseOpts.envFile)
	if err != nil {
		return errors.Wrapf(err, "cannot parse config")
	}

	engine, err := server.NewOCREngine(log.Logger, c.OCR)
	if err != nil {
		return errors.WithStack(err)
	}
	if p, ok := engine.(pather); ok {
		path, err := p.Path()
		if err != nil {
			return errors.WithStack(err)
		}
		fmt.Printf("tesseract binary:\t%s\n", path)
	}
	version, err := engine.Version(ctx)
	if err != nil {
		return errors.Wrapf(err, "ocr engine %s unavailable", engine.Name())
	}
	fmt.Printf("tesseract version:\t%s\n", version)

	l, err := net.Listen("tcp", c.Web.ListenAddress)
	if err != nil {
		return errors.Wrapf(err, "cannot bind %s", c.Web.ListenAddress)
	}
	if err := l.Close(); err != nil {
		return errors.WithStack(err)
	}
	fmt.Printf("listen address:\t\t%s\n", c.Web.ListenAddress)

	return nil
}
