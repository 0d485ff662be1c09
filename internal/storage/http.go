package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultHTTPBase is the hebrewbooks page feed.
const DefaultHTTPBase = "https://beta.hebrewbooks.org/pagefeed/hebrewbooks_org"

// HTTPSource downloads pages from a URL of the form {base}_{remoteId}_{page}.pdf.
type HTTPSource struct {
	client    *http.Client
	base      string
	userAgent string
}

// HTTPOptions configures an HTTPSource.
type HTTPOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(opts.BaseURL, "/_")
	if base == "" {
		base = DefaultHTTPBase
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0"
	}
	return &HTTPSource{client: client, base: base, userAgent: ua}
}

func (s *HTTPSource) Name() string { return "http" }

// URL returns the page URL for req.
func (s *HTTPSource) URL(req Request) string {
	return fmt.Sprintf("%s_%s_%d.pdf", s.base, req.Corpus.RemoteID, req.Page)
}

func (s *HTTPSource) Download(ctx context.Context, req Request, dst Sink) error {
	url := s.URL(req)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return Permanent(fmt.Errorf("build request: %w", err))
	}
	hreq.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(hreq)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%s: %w", url, ErrNotFound)
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &HTTPError{StatusCode: resp.StatusCode, Source: s.Name(), URL: url}
	default:
		return Permanent(&HTTPError{StatusCode: resp.StatusCode, Source: s.Name(), URL: url})
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return fmt.Errorf("read body %s: %w", url, err)
	}
	log.Debug().Str("url", url).Int64("bytes", n).Msg("downloaded page over http")
	return nil
}
