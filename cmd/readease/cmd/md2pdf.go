package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/wudi/readease/layout"
	"github.com/wudi/readease/observability"
	"github.com/wudi/readease/pdf"
)

var cmdMD2PDF = &cobra.Command{
	Use:   "md2pdf <in.md> <out.pdf>",
	Short: "render a markdown file as pdf",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := md2pdf(args[0], args[1]); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type md2pdfOptions struct {
	title string
	a4    bool
}

var md2pdfOpts md2pdfOptions

func init() {
	flags := cmdMD2PDF.Flags()

	flags.StringVar(&md2pdfOpts.title, "title", "", "document title (defaults to the input file name)")
	flags.BoolVar(&md2pdfOpts.a4, "a4", false, "use A4 pages instead of Letter")

	cmdReadease.AddCommand(cmdMD2PDF)
}

func md2pdf(in, out string) error {
	source, err := os.ReadFile(in)
	if err != nil {
		return errors.WithStack(err)
	}

	title := md2pdfOpts.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	}
	opts := []layout.Option{layout.WithLogger(observability.NewZerolog(log.Logger))}
	if md2pdfOpts.a4 {
		opts = append(opts, layout.WithPaperSize(pdf.A4))
	}

	data, err := layout.MarkdownToPDF(string(source), pdf.Info{Title: title, Producer: "readease", Created: time.Now()}, opts...)
	if err != nil {
		return errors.Wrapf(err, "failed to render %s", in)
	}
	return errors.WithStack(os.WriteFile(out, data, 0o644))
}
