// Package fetch loads setup resources from a local path or an http(s) URL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// MaxSize caps the size of a fetched resource.
const MaxSize = 16 << 20

// DefaultTimeout bounds a single fetch when the caller passes zero.
const DefaultTimeout = 10 * time.Second

var client = &http.Client{}

// IsURL reports whether source is fetched over HTTP.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Fetch returns the contents of source, which is either a file path or an
// http(s) URL. Remote fetches are bounded by timeout.
func Fetch(ctx context.Context, source string, timeout time.Duration) ([]byte, error) {
	if source == "" {
		return nil, fmt.Errorf("fetch: empty source")
	}
	if !IsURL(source) {
		data, err := os.ReadFile(strings.TrimPrefix(source, "file://"))
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", source, err)
		}
		return data, nil
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: read body: %w", source, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", source, resp.StatusCode)
	}
	if len(body) > MaxSize {
		return nil, fmt.Errorf("fetch %s: larger than %d bytes", source, MaxSize)
	}
	return body, nil
}
