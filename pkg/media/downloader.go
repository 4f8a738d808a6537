// Package media fetches remote message attachments into local storage.
// Downloading is best-effort: the transform keeps the remote URL either
// way, and a local path is only attached when the fetch succeeded.
package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// maxAttachmentBytes caps a single download. Larger objects are abandoned
// rather than truncated.
const maxAttachmentBytes = 512 << 20

// Downloader fetches one attachment URL and returns the local file path.
// An error means the attachment stays URL-only; it never fails a message.
type Downloader interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// HTTPDownloader downloads attachments over HTTP(S) into a directory.
type HTTPDownloader struct {
	dir    string
	client *http.Client
	log    *slog.Logger
}

// NewHTTPDownloader returns a downloader writing into dir, creating it on
// first use.
func NewHTTPDownloader(dir string, logger *slog.Logger) *HTTPDownloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDownloader{
		dir:    dir,
		client: &http.Client{Timeout: 60 * time.Second},
		log:    logger,
	}
}

// Fetch downloads rawURL and returns the path of the stored file. The file
// name is the URL's base name prefixed with a short content-address of the
// URL, so distinct objects with the same base name never collide.
func (d *HTTPDownloader) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid attachment URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported attachment URL scheme %q", u.Scheme)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating media directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching attachment: unexpected status %s", resp.Status)
	}

	dest := filepath.Join(d.dir, localName(u))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("creating attachment file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > maxAttachmentBytes {
		err = fmt.Errorf("attachment exceeds size limit")
	}
	if err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("writing attachment: %w", err)
	}

	d.log.Debug("Attachment downloaded", "url", rawURL, "path", dest, "bytes", n)
	return dest, nil
}

// localName builds a collision-free file name: eight hex chars of the URL
// hash, an underscore, and the sanitized base name.
func localName(u *url.URL) string {
	sum := sha256.Sum256([]byte(u.String()))
	base := sanitizeFileName(path.Base(u.Path))
	if base == "" || base == "." || base == "/" {
		base = "attachment"
	}
	return hex.EncodeToString(sum[:4]) + "_" + base
}

// sanitizeFileName strips characters that are unsafe in file names.
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)
}
