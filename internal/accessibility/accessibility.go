// Package accessibility fetches a web page and reports accessibility rule
// violations with an optional plain language summary.
package accessibility

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	FetchTimeout = 30 * time.Second
	UserAgent    = "Mozilla/5.0 (compatible; ReadEase/1.0; accessibility checker)"

	ChunkSize = 512

	NoViolationsSummary = "No accessibility violations were found."

	maxPageBytes       = 10 << 20
	summaryConcurrency = 4
)

var (
	ErrInvalidURL = errors.New("url must be an absolute http or https url")
	ErrReport     = errors.New("failed to generate accessibility report")
	// ErrBlockedAddress is returned when a page resolves to an address that
	// is not publicly routable.
	ErrBlockedAddress = errors.New("address is not publicly routable")
)

// Summarizer turns a chunk of violation records into prose.
type Summarizer interface {
	Summarize(ctx context.Context, chunk string) (string, error)
}

type Report struct {
	URL             string      `json:"url"`
	Violations      []Violation `json:"violations"`
	Summary         *string     `json:"summary"`
	TotalViolations int         `json:"total_violations"`
}

type Checker struct {
	log        zerolog.Logger
	client     *http.Client
	summarizer Summarizer
}

// NewChecker returns a checker. A nil summarizer selects the local summary.
// Pages are only fetched from publicly routable addresses.
func NewChecker(log zerolog.Logger, summarizer Summarizer) *Checker {
	dialer := &net.Dialer{Timeout: FetchTimeout, Control: publicOnly}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// a proxy would make the dialer check the proxy instead of the page
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &Checker{
		log:        log,
		client:     &http.Client{Timeout: FetchTimeout, Transport: transport},
		summarizer: summarizer,
	}
}

// SetHTTPClient replaces default http.Client with user given one.
func (c *Checker) SetHTTPClient(client *http.Client) {
	c.client = client
}

// AllowPrivateNetworks lets the checker fetch pages from loopback, private
// and link-local addresses.
func (c *Checker) AllowPrivateNetworks() {
	c.SetHTTPClient(&http.Client{Timeout: FetchTimeout})
}

// carrier-grade NAT, not covered by net.IP.IsPrivate
var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// PublicAddress reports whether ip is publicly routable.
func PublicAddress(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip))
}

// publicOnly is a net.Dialer Control hook. It runs after name resolution so
// it sees the address actually dialed, including after redirects.
func publicOnly(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return errors.WithStack(err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !PublicAddress(ip) {
		return errors.Wrapf(ErrBlockedAddress, "refusing to connect to %s", host)
	}
	return nil
}

func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.WithStack(ErrInvalidURL)
	}
	return u, nil
}

func (c *Checker) Check(ctx context.Context, rawURL string, summarize bool) (*Report, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := c.fetch(ctx, u.String())
	if err != nil {
		c.log.Warn().Err(err).Str("url", u.String()).Msg("accessibility fetch failed")
		return nil, errors.WithStack(ErrReport)
	}

	violations := Evaluate(doc)
	if violations == nil {
		violations = []Violation{}
	}
	report := &Report{
		URL:             u.String(),
		Violations:      violations,
		TotalViolations: len(violations),
	}
	if summarize {
		s := c.Summary(ctx, violations)
		report.Summary = &s
	}
	return report, nil
}

func (c *Checker) fetch(ctx context.Context, u string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || (mt != "text/html" && mt != "application/xhtml+xml") {
		return nil, errors.Errorf("unexpected content type %q", ct)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return doc, nil
}

func record(v Violation) string {
	return fmt.Sprintf("Violation ID: %s\nDescription: %s\nImpact: %s\nHelp: %s\nAffected Elements: %d\n\n",
		v.ID, v.Description, v.Impact, v.Help, len(v.Nodes))
}

// Chunk is a group of violation records summarized in one model call.
type Chunk struct {
	Text       string
	Violations []Violation
}

// Chunks groups violation records into chunks of at most size bytes. A
// record longer than size forms a chunk of its own.
func Chunks(violations []Violation, size int) []Chunk {
	var out []Chunk
	var cur Chunk
	for _, v := range violations {
		text := record(v)
		if len(cur.Text)+len(text) > size {
			if cur.Text != "" {
				out = append(out, cur)
			}
			cur = Chunk{Text: text, Violations: []Violation{v}}
			continue
		}
		cur.Text += text
		cur.Violations = append(cur.Violations, v)
	}
	if cur.Text != "" {
		out = append(out, cur)
	}
	return out
}

// Summary summarizes the violations chunk by chunk. A failed chunk yields a
// placeholder instead of failing the report.
func (c *Checker) Summary(ctx context.Context, violations []Violation) string {
	if len(violations) == 0 {
		return NoViolationsSummary
	}
	chunks := Chunks(violations, ChunkSize)
	summaries := make([]string, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryConcurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			if c.summarizer == nil {
				summaries[i] = localSummary(ch.Violations)
				return nil
			}
			s, err := c.summarizer.Summarize(gctx, strings.TrimSpace(ch.Text))
			if err != nil {
				c.log.Err(err).Int("chunk", i+1).Int("chunks", len(chunks)).Msg("failed to summarize chunk")
				summaries[i] = fmt.Sprintf("Error generating summary for part %d", i+1)
				return nil
			}
			summaries[i] = strings.TrimSpace(s)
			return nil
		})
	}
	// chunk goroutines record failures in place and never return an error
	g.Wait()

	return strings.Join(summaries, "\n\n")
}

func localSummary(violations []Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		n := len(v.Nodes)
		noun := "elements"
		if n == 1 {
			noun = "element"
		}
		parts = append(parts, fmt.Sprintf("%s (%s impact, %d %s).", v.Help, v.Impact, n, noun))
	}
	return strings.Join(parts, " ")
}
