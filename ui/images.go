package ui

import (
	"crypto/sha1" //nolint:gosec // cache key only
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
)

const maxImageBytes = 2 << 20

// imageCache fetches remote avatars and hashtag images once per URL.
// Failures are remembered so a missing image is not requested again.
type imageCache struct {
	client *http.Client
	onLoad func(url string)

	mu      sync.Mutex
	entries map[string]*imageEntry
}

type imageEntry struct {
	res  fyne.Resource
	done bool
}

func newImageCache(onLoad func(url string)) *imageCache {
	return &imageCache{
		client:  &http.Client{Timeout: 10 * time.Second},
		onLoad:  onLoad,
		entries: make(map[string]*imageEntry),
	}
}

// Get returns the image for url, or nil while it loads or if it failed.
// The first call starts the download; onLoad runs when it finishes.
func (c *imageCache) Get(url string) fyne.Resource {
	if url == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[url]; ok {
		return e.res
	}
	c.entries[url] = &imageEntry{}
	go c.fetch(url)
	return nil
}

func (c *imageCache) fetch(url string) {
	res, err := c.download(url)
	if err != nil {
		slog.Debug("image unavailable", "url", url, "err", err)
	}
	c.mu.Lock()
	c.entries[url] = &imageEntry{res: res, done: true}
	c.mu.Unlock()
	if c.onLoad != nil {
		c.onLoad(url)
	}
}

func (c *imageCache) download(url string) (fyne.Resource, error) {
	resp, err := c.client.Get(url) //nolint:gosec,noctx // URL built from queue and user data
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("content type %q", ct)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum([]byte(url)) //nolint:gosec // cache key only
	return fyne.NewStaticResource(hex.EncodeToString(sum[:8]), data), nil
}
