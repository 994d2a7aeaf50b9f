// Package security validates user-supplied hosts, URLs and page input.
package security

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// MaxPageBytes bounds how much of a page is read.
const MaxPageBytes = 32 << 20

// ErrTooLarge is returned once a LimitedReader's budget is spent.
var ErrTooLarge = errors.New("input size limit exceeded")

// ValidateHost checks a site host such as "example.com" or "localhost:8080".
// Schemes, paths and whitespace are rejected.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if strings.ContainsAny(host, " \t\r\n/\\?#@") {
		return fmt.Errorf("invalid host %q: use a bare host name such as example.com", host)
	}
	parsed, err := url.Parse("//" + host)
	if err != nil || parsed.Host != host || parsed.Hostname() == "" {
		return fmt.Errorf("invalid host %q", host)
	}
	return nil
}

// NormalizeHost lower-cases a host after validating it.
func NormalizeHost(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if err := ValidateHost(host); err != nil {
		return "", err
	}
	return host, nil
}

// ValidateImageURL checks a background image URL. Only http(s) and
// data:image URLs are allowed.
func ValidateImageURL(urlStr string) error {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return fmt.Errorf("empty image URL")
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid image URL: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "https", "http":
		if parsed.Host == "" {
			return fmt.Errorf("image URL must have a hostname")
		}
		return nil
	case "data":
		if !strings.HasPrefix(strings.ToLower(parsed.Opaque), "image/") {
			return fmt.Errorf("data URL is not an image")
		}
		return nil
	default:
		return fmt.Errorf("invalid image URL protocol (only http, https and data allowed): %s", parsed.Scheme)
	}
}

// LimitedReader wraps an io.Reader and fails once more than its budget is read.
type LimitedReader struct {
	R         io.Reader
	Remaining int64
}

// Read implements io.Reader with size limits.
func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Remaining < 0 {
		return 0, ErrTooLarge
	}
	// Read one byte past the budget so an exact fit is not an error.
	if int64(len(p)) > l.Remaining+1 {
		p = p[:l.Remaining+1]
	}
	n, err := l.R.Read(p)
	l.Remaining -= int64(n)
	if l.Remaining < 0 {
		return n, ErrTooLarge
	}
	return n, err
}

// NewLimitedReader creates a new LimitedReader with the specified size limit.
func NewLimitedReader(r io.Reader, maxBytes int64) *LimitedReader {
	return &LimitedReader{
		R:         r,
		Remaining: maxBytes,
	}
}

// ReadFile reads at most maxBytes from path.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(NewLimitedReader(f, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}
