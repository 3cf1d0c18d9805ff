package listing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxListingBytes caps how much of a directory page is parsed.
const maxListingBytes = 8 << 20

// Client reads HTML directory listings of the remote archive.
// It implements pipeline.Lister.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// NewClient creates a listing client rooted at baseURL. timeout bounds each
// listing request.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}
}

// DirURL returns the listing URL of a run directory.
func (c *Client) DirURL(dir string) string {
	return c.baseURL + "/" + strings.Trim(dir, "/") + "/"
}

// FileURL returns the download URL of a file in a run directory.
func (c *Client) FileURL(dir, name string) string {
	return c.DirURL(dir) + url.PathEscape(name)
}

// List returns the file names linked from the run directory's index page,
// in document order.
func (c *Client) List(ctx context.Context, dir string) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := c.DirURL(dir)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list %s: status %d", u, resp.StatusCode)
	}

	names, err := ParseHrefs(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", u, err)
	}
	c.logger.Debug("listed run directory", "dir", dir, "entries", len(names))
	return names, nil
}

// ParseHrefs extracts the file names referenced by anchor hrefs. Query
// strings, fragments, directories and parent links are dropped; duplicates
// keep their first position.
func ParseHrefs(r io.Reader) ([]string, error) {
	var names []string
	seen := make(map[string]bool)

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return names, nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if entry, ok := fileName(string(val)); ok && !seen[entry] {
						seen[entry] = true
						names = append(names, entry)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func fileName(href string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", false
	}
	base := path.Base(u.Path)
	if base == "." || base == ".." || base == "/" {
		return "", false
	}
	return base, true
}
