package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"videofetch/internal/cache"
	"videofetch/internal/status"
)

// DefaultFormatSelector is used when no quality selector was requested:
// best video plus best audio, falling back to the best combined format.
const DefaultFormatSelector = "bestvideo+bestaudio/best"

// Fetcher populates the cache store by running the external fetch tool.
// Concurrent misses for the same cache key are collapsed into one tool run;
// the other callers wait for its result.
type Fetcher struct {
	store     *cache.Store
	reg       *status.Registry
	run       Runner
	tool      string
	timeout   time.Duration
	extraArgs []string
	group     singleflight.Group
	log       *slog.Logger
}

// NewFetcher returns a Fetcher using the given tool binary and timeout.
// extraArgs are prepended to every invocation (proxy flags and the like).
func NewFetcher(store *cache.Store, reg *status.Registry, run Runner, tool string, timeout time.Duration, extraArgs []string, log *slog.Logger) *Fetcher {
	return &Fetcher{
		store:     store,
		reg:       reg,
		run:       run,
		tool:      tool,
		timeout:   timeout,
		extraArgs: extraArgs,
		log:       log,
	}
}

// EnsureCached returns the path of the cached asset for (url, quality),
// fetching it first if absent. A cache hit emits using-cache, runs no
// external process and reports fromCache true. A miss runs the fetch tool
// into a temporary file and atomically publishes it under the cache key.
func (f *Fetcher) EnsureCached(ctx context.Context, url, quality, sessionID string) (path string, fromCache bool, err error) {
	key := cache.NewKey(url, quality)

	if path, ok := f.store.Ensure(key); ok {
		f.reg.Publish(sessionID, status.Event{Status: status.StatusUsingCache})
		return path, true, nil
	}

	v, err, _ := f.group.Do(key.String(), func() (interface{}, error) {
		// Re-check under the flight lock: a concurrent fetch may have
		// published while this caller was queued.
		if path, ok := f.store.Ensure(key); ok {
			return path, nil
		}
		return f.fetch(ctx, key, url, quality, sessionID)
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), false, nil
}

func (f *Fetcher) fetch(ctx context.Context, key cache.Key, url, quality, sessionID string) (string, error) {
	selector := DefaultFormatSelector
	if quality != "" {
		selector = quality
	}

	f.reg.Publish(sessionID, status.Event{Status: status.StatusStarting, Detail: "downloading " + url})

	tmp := f.store.TempPath(key)
	args := append([]string{}, f.extraArgs...)
	args = append(args,
		"-f", selector,
		"--no-playlist",
		"--merge-output-format", "mp4",
		"-o", tmp,
		url,
	)

	f.log.Debug("fetch tool run", slog.String("url", url), slog.String("selector", selector))
	if _, err := f.run.Run(ctx, Command{Path: f.tool, Args: args, Timeout: f.timeout}); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}

	path, err := f.store.Publish(key, tmp)
	if err != nil {
		os.Remove(tmp)
		return "", err
	}

	f.reg.Publish(sessionID, status.Event{Status: status.StatusDownloaded})
	return path, nil
}

// Title resolves the source's human-readable title for filename
// construction. This is a light tool invocation independent of the cache;
// its failure fails the whole request, since there is no usable filename
// without it.
func (f *Fetcher) Title(ctx context.Context, url string) (string, error) {
	args := append([]string{}, f.extraArgs...)
	args = append(args, "--get-title", url)

	res, err := f.run.Run(ctx, Command{Path: f.tool, Args: args, Timeout: f.timeout})
	if err != nil {
		return "", fmt.Errorf("resolve title for %s: %w", url, err)
	}

	title := strings.TrimSpace(string(res.Stdout))
	title = strings.ReplaceAll(title, `"`, "'")
	if title == "" {
		return "", errors.New("resolve title: tool returned no output")
	}
	return title, nil
}
