package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"

	"github.com/wudi/readease/internal/config"
	"github.com/wudi/readease/internal/server"
	"github.com/wudi/readease/ocr"
)

var cmdOCR = &cobra.Command{
	Use:   "ocr <image>...",
	Short: "extract the text of images",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := ocrImages(cmd.Context(), args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type ocrOptions struct {
	lang string
	psm  int
	json bool
}

var ocrOpts ocrOptions

func init() {
	flags := cmdOCR.Flags()

	flags.StringVar(&ocrOpts.lang, "lang", "", "languages joined by + (defaults to the configured ones)")
	flags.IntVar(&ocrOpts.psm, "psm", -1, "tesseract page segmentation mode")
	flags.BoolVar(&ocrOpts.json, "json", false, "print text and confidence as json")

	cmdReadease.AddCommand(cmdOCR)
}

type ocrOutput struct {
	File       string   `json:"file"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

func ocrImages(ctx context.Context, files []string) error {
	c, err := config.Parse(readeaseOpts.config, readeaseOpts.envFile)
	if err != nil {
		return errors.Wrapf(err, "cannot parse config")
	}
	engine, err := server.NewOCREngine(log.Logger, c.OCR)
	if err != nil {
		return errors.WithStack(err)
	}

	langs := c.OCR.Languages
	if ocrOpts.lang != "" {
		langs = strings.Split(ocrOpts.lang, "+")
	}

	if ocrOpts.psm >= 0 && !ocr.ValidPageSegMode(ocrOpts.psm) {
		return errors.Errorf("--psm must be between 0 and %d", ocr.MaxPageSegMode)
	}

	inputs := make([]ocr.Input, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return errors.WithStack(err)
		}
		opts := []ocr.InputOption{ocr.WithID(file), ocr.WithLanguages(langs...), ocr.WithDPI(c.OCR.DPI)}
		if ocrOpts.psm >= 0 {
			opts = append(opts, ocr.WithTesseractPSM(ocrOpts.psm))
		}
		in, err := ocr.InputFromUpload(data, opts...)
		if err != nil {
			return errors.Wrapf(err, "cannot read %s", file)
		}
		inputs = append(inputs, in)
	}

	results, err := ocr.RecognizeInputs(ctx, engine, inputs)
	if err != nil {
		return errors.Wrapf(err, "failed to extract text")
	}

	if !ocrOpts.json {
		for i, res := range results {
			if len(results) > 1 {
				fmt.Printf("==> %s <==\n", files[i])
			}
			fmt.Println(res.PlainText)
		}
		return nil
	}
	out := make([]ocrOutput, 0, len(results))
	for i, res := range results {
		o := ocrOutput{File: files[i], Text: res.PlainText}
		if len(res.Words()) > 0 {
			conf := res.Confidence()
			o.Confidence = &conf
		}
		out = append(out, o)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(out))
}
