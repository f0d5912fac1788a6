package tesseract

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wudi/readease/observability"
	"github.com/wudi/readease/ocr"
)

// CLIEngine implements ocr.Engine by running the tesseract binary and
// parsing its TSV output. The binary path usually comes from TESSERACT_CMD.
type CLIEngine struct {
	cmd      string
	tessdata string
	timeout  time.Duration
	log      observability.Logger
}

// CLIOption configures a CLIEngine.
type CLIOption func(*CLIEngine)

// WithTessdataDir points tesseract at a trained data directory.
func WithTessdataDir(dir string) CLIOption {
	return func(e *CLIEngine) { e.tessdata = dir }
}

// WithTimeout bounds a single recognition. Zero disables the bound.
func WithTimeout(d time.Duration) CLIOption {
	return func(e *CLIEngine) { e.timeout = d }
}

// WithLogger sets the logger used for command diagnostics.
func WithLogger(l observability.Logger) CLIOption {
	return func(e *CLIEngine) { e.log = l }
}

// NewCLIEngine returns an engine running cmd, which may be a bare name looked
// up on PATH or an absolute path.
func NewCLIEngine(cmd string, opts ...CLIOption) *CLIEngine {
	if cmd == "" {
		cmd = "tesseract"
	}
	e := &CLIEngine{cmd: cmd, log: observability.NopLogger{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *CLIEngine) Name() string { return "tesseract" }

// Path resolves the configured binary.
func (e *CLIEngine) Path() (string, error) {
	p, err := exec.LookPath(e.cmd)
	if err != nil {
		return "", fmt.Errorf("resolve tesseract binary %q: %w", e.cmd, err)
	}
	return p, nil
}

// Version runs "tesseract --version" and returns its first line.
func (e *CLIEngine) Version(ctx context.Context) (string, error) {
	p, err := e.Path()
	if err != nil {
		return "", err
	}
	out, err := exec.CommandContext(ctx, p, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("tesseract --version: %w", err)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// Recognize performs OCR on a single image input.
func (e *CLIEngine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	imgData, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	p, err := e.Path()
	if err != nil {
		return ocr.Result{}, err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p, e.args(in)...)
	cmd.Stdin = bytes.NewReader(imgData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	timer := observability.StartTimer(e.log, observability.MetricOCRTime)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ocr.Result{}, fmt.Errorf("tesseract: %w", ctx.Err())
		}
		return ocr.Result{}, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	blocks, err := ParseTSV(stdout.Bytes())
	if err != nil {
		return ocr.Result{}, err
	}
	res := ocr.Result{
		InputID:   in.ID,
		PlainText: joinBlocks(blocks),
		Blocks:    blocks,
		Language:  firstLanguage(in.Languages),
	}
	timer.Stop(observability.String("input", in.ID), observability.Int(observability.MetricOCRWords, len(res.Words())))
	return res, nil
}

func (e *CLIEngine) args(in ocr.Input) []string {
	args := []string{"stdin", "stdout"}
	if len(in.Languages) > 0 {
		args = append(args, "-l", strings.Join(in.Languages, "+"))
	}
	if in.DPI > 0 {
		args = append(args, "--dpi", strconv.Itoa(in.DPI))
	}
	if e.tessdata != "" {
		args = append(args, "--tessdata-dir", e.tessdata)
	}
	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == ocr.MetaPageSegMode {
			args = append(args, "--psm", in.Metadata[k])
			continue
		}
		args = append(args, "-c", k+"="+in.Metadata[k])
	}
	return append(args, "tsv")
}

// tsv columns emitted by tesseract
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

const levelWord = 5

type lineKey struct{ page, block, par, line int }

// ParseTSV converts tesseract TSV output into blocks of lines of words.
// Rows above word level only describe layout and carry a confidence of -1.
func ParseTSV(data []byte) ([]ocr.TextBlock, error) {
	type blockKey struct{ page, block int }
	var (
		blocks     []ocr.TextBlock
		blockIndex = map[blockKey]int{}
		lineIndex  = map[lineKey]int{}
	)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	first := true
	for sc.Scan() {
		row := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(row, "level") {
				continue
			}
		}
		if strings.TrimSpace(row) == "" {
			continue
		}
		cols := strings.SplitN(row, "\t", numCols)
		if len(cols) < numCols-1 {
			return nil, fmt.Errorf("malformed tsv row %q", row)
		}
		nums := make([]int, colConf)
		for i := 0; i < colConf; i++ {
			n, err := strconv.Atoi(cols[i])
			if err != nil {
				return nil, fmt.Errorf("malformed tsv column %d in %q: %w", i, row, err)
			}
			nums[i] = n
		}
		if nums[colLevel] != levelWord {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[colConf]), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed tsv confidence in %q: %w", row, err)
		}
		text := ""
		if len(cols) > colText {
			text = strings.TrimSpace(cols[colText])
		}
		if conf < 0 || text == "" {
			continue
		}

		bk := blockKey{nums[colPage], nums[colBlock]}
		bi, ok := blockIndex[bk]
		if !ok {
			bi = len(blocks)
			blockIndex[bk] = bi
			blocks = append(blocks, ocr.TextBlock{})
		}
		lk := lineKey{nums[colPage], nums[colBlock], nums[colPar], nums[colLine]}
		li, ok := lineIndex[lk]
		if !ok {
			li = len(blocks[bi].Lines)
			lineIndex[lk] = li
			blocks[bi].Lines = append(blocks[bi].Lines, ocr.TextLine{})
		}
		line := &blocks[bi].Lines[li]
		line.Words = append(line.Words, ocr.TextWord{
			Text: text,
			Bounds: ocr.Region{
				X:      float64(nums[colLeft]),
				Y:      float64(nums[colTop]),
				Width:  float64(nums[colWidth]),
				Height: float64(nums[colHeight]),
			},
			Confidence: conf / 100.0,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}

	for bi := range blocks {
		b := &blocks[bi]
		var lines []string
		var sum float64
		var n int
		for li := range b.Lines {
			l := &b.Lines[li]
			words := make([]string, len(l.Words))
			var lsum float64
			for wi, w := range l.Words {
				words[wi] = w.Text
				lsum += w.Confidence
			}
			l.Text = strings.Join(words, " ")
			l.Bounds = mergeBounds(l.Words)
			l.Confidence = lsum / float64(len(l.Words))
			lines = append(lines, l.Text)
			sum += lsum
			n += len(l.Words)
		}
		b.Text = strings.Join(lines, "\n")
		b.Confidence = sum / float64(n)
		var all []ocr.TextWord
		for _, l := range b.Lines {
			all = append(all, l.Words...)
		}
		b.Bounds = mergeBounds(all)
	}
	return blocks, nil
}

func joinBlocks(blocks []ocr.TextBlock) string {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, "\n\n")
}
