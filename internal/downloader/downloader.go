// Package downloader implements a download manager shared by concurrent downloads of files over HTTP.
package downloader

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// DefaultMaxParallel is the number of simultaneous downloads allowed by a new Manager.
const DefaultMaxParallel = 20

// ProgressCallback is called as the download progresses. total is -1 if the size is not known.
type ProgressCallback func(downloaded, total int64)

// Manager downloads files, limiting the number of simultaneous downloads. It is safe for concurrent use,
// but the With* configuration methods should be called before the first download.
type Manager struct {
	semaphore *Semaphore
	authToken string
	userAgent string
	client    *http.Client
}

// New creates a Manager allowing up to DefaultMaxParallel simultaneous downloads.
func New() *Manager {
	return &Manager{
		semaphore: NewSemaphore(DefaultMaxParallel),
		client:    http.DefaultClient,
	}
}

// MaxParallel sets the number of simultaneous downloads. If <= 0 there is no limit.
func (m *Manager) MaxParallel(n int) *Manager {
	m.semaphore.Resize(n)
	return m
}

// WithAuthToken sets the bearer token sent with every request. Empty disables authentication.
func (m *Manager) WithAuthToken(authToken string) *Manager {
	m.authToken = authToken
	return m
}

// WithUserAgent sets the User-Agent header of the requests.
func (m *Manager) WithUserAgent(userAgent string) *Manager {
	m.userAgent = userAgent
	return m
}

// WithHTTPClient sets the client used for requests. Defaults to http.DefaultClient.
func (m *Manager) WithHTTPClient(client *http.Client) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	m.client = client
	return m
}

// Download url contents into filePath, truncating it if it exists. It blocks until the download is
// finished, ctx is cancelled or there is an error.
//
// progressCallback is optional; if given, it is called synchronously as data is written.
func (m *Manager) Download(ctx context.Context, url, filePath string, progressCallback ProgressCallback) error {
	if err := m.semaphore.Acquire(ctx); err != nil {
		return errors.Wrapf(err, "waiting to download %q", url)
	}
	defer m.semaphore.Release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to create request for %q", url)
	}
	if m.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+m.authToken)
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed request to download %q", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Errorf("download of %q failed with status %q: %q", url, resp.Status, msg)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", filePath)
	}
	var r io.Reader = resp.Body
	if progressCallback != nil {
		progressCallback(0, resp.ContentLength)
		r = &progressReader{reader: resp.Body, total: resp.ContentLength, callback: progressCallback}
	}
	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to download %q to %q", url, filePath)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", filePath)
	}
	slog.Debug("downloaded", "url", url, "file", filePath, "size", humanize.Bytes(uint64(n)))
	return nil
}

// progressReader reports the number of bytes read so far.
type progressReader struct {
	reader            io.Reader
	downloaded, total int64
	callback          ProgressCallback
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.downloaded += int64(n)
		p.callback(p.downloaded, p.total)
	}
	return n, err
}
