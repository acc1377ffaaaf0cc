// Package fetch downloads remote payloads into the working directory. A
// download is skipped when the destination already exists, which makes every
// job safely re-runnable.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/icholy/digest"
)

// StatusError reports a non-200 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Observer receives the outcome of every network transfer.
type Observer interface {
	ObserveDownload(scheme string, bytes int64, err error)
}

// Client retrieves files over HTTP(S) and FTP.
type Client struct {
	http       *http.Client
	ftpTimeout time.Duration
	userAgent  string
	logger     *slog.Logger
	observer   Observer
}

// New returns a Client using httpClient for HTTP(S) downloads. A nil
// httpClient uses a client without timeout.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		http:       httpClient,
		ftpTimeout: 30 * time.Second,
		userAgent:  "shread/1.0",
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithUserAgent sets the User-Agent header for HTTP requests.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// WithObserver registers a transfer observer, typically metrics.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// WithFTPTimeout sets the FTP dial timeout.
func (c *Client) WithFTPTimeout(d time.Duration) *Client {
	if d > 0 {
		c.ftpTimeout = d
	}
	return c
}

// NewDigestClient returns an HTTP client that answers digest-auth
// challenges. verifyTLS false disables certificate verification for hosts
// with self-signed certificates.
func NewDigestClient(username, password string, verifyTLS bool, timeout time.Duration) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &digest.Transport{
			Username:  username,
			Password:  password,
			Transport: base,
		},
	}
}

// Exists reports whether path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Get downloads rawURL to dst. When dst exists and overwrite is false no
// network I/O happens and downloaded is false. The payload is written to a
// temporary sibling and renamed into place so a failed transfer never leaves
// a partial dst behind.
func (c *Client) Get(ctx context.Context, rawURL, dst string, overwrite bool) (downloaded bool, err error) {
	if !overwrite && Exists(dst) {
		c.logger.DebugContext(ctx, "skipping download, file exists", slog.String("path", dst))
		return false, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", dst, err)
	}

	tmp := dst + ".part"
	var n int64
	switch u.Scheme {
	case "http", "https":
		n, err = c.getHTTP(ctx, u.String(), tmp)
	case "ftp":
		n, err = c.getFTP(ctx, u, tmp)
	default:
		err = fmt.Errorf("unsupported scheme %q in %s", u.Scheme, rawURL)
	}
	if c.observer != nil {
		c.observer.ObserveDownload(u.Scheme, n, err)
	}
	if err != nil {
		os.Remove(tmp)
		c.logger.WarnContext(ctx, "download failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return false, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("move %s into place: %w", dst, err)
	}

	c.logger.InfoContext(ctx, "downloaded",
		slog.String("url", rawURL),
		slog.String("path", dst),
		slog.Int64("bytes", n),
	)
	return true, nil
}

func (c *Client) getHTTP(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	return writeFile(dst, resp.Body)
}

func writeFile(dst string, r io.Reader) (int64, error) {
	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", dst, err)
	}
	return n, nil
}

// IsNotFound reports whether err is a 404 from an HTTP download.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
