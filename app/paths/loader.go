package paths

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/itswincer/inkstone/app/cfg"
)

// Loader fetches the valid_paths.txt allow-list and installs it into
// the shared Set.
type Loader struct {
	set        *Set
	httpClient *http.Client
	url        string
}

func NewLoader(set *Set, httpClient *http.Client) *Loader {
	return &Loader{
		set:        set,
		httpClient: httpClient,
		url:        cfg.Get().ValidPathsURL,
	}
}

// Refresh fetches and replaces the allow-list. An empty or fully
// invalid response is a failure: the previous set stays in place so a
// broken deploy cannot invalidate the whole site.
func (l *Loader) Refresh(ctx context.Context) error {
	if l.url == "" {
		return fmt.Errorf("valid paths URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch valid paths: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d fetching valid paths", resp.StatusCode)
	}

	entries, err := parseValidPaths(resp.Body)
	if err != nil {
		return err
	}

	l.set.Replace(entries)
	slog.Debug("Valid paths refreshed", "count", len(entries))

	return nil
}

// parseValidPaths reads one path per line. Blank lines and # comments
// are skipped; malformed entries are dropped with a warning. Zero
// surviving entries is an error.
func parseValidPaths(r io.Reader) ([]string, error) {
	var entries []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "/") || strings.ContainsAny(line, " \t") {
			slog.Warn("Skipping malformed valid path entry", "entry", line)
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read valid paths: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("valid paths response contained no usable entries")
	}

	return entries, nil
}
