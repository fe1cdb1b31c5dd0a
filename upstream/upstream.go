// Package upstream is the client for the daily price-archive service.
//
// The upstream exposes a directory listing (GET /v0/list), one ZIP archive
// per date (/v0/archive/{date}.zip), and honours byte-range requests on the
// archives. This client probes archive sizes with HEAD, keeps one parsed
// central directory per archive URL for the life of the process, and reads
// individual CSV members through ziprange.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/cjenik/ziprange"
)

// ErrUpstreamUnavailable wraps network-level and non-success failures of the
// list and probe calls.
var ErrUpstreamUnavailable = errors.New("upstream: unavailable")

// ErrNoArchives means the upstream list came back empty: there is nothing
// published to resolve a date against.
var ErrNoArchives = errors.New("upstream: no archives published")

// Archive describes one published archive from the /v0/list response.
type Archive struct {
	Date    string `json:"date"`
	URL     string `json:"url"`
	Size    int64  `json:"size"`
	Updated string `json:"updated"`
}

// CSVFile names the three member files each chain folder carries.
type CSVFile string

const (
	StoresCSV   CSVFile = "stores.csv"
	ProductsCSV CSVFile = "products.csv"
	PricesCSV   CSVFile = "prices.csv"
)

// Config configures the client.
type Config struct {
	// BaseURL of the upstream service, without trailing slash.
	BaseURL string
	// Timeout per HTTP call. Default: 60s.
	Timeout time.Duration
	// ListTTL is how long a /v0/list response stays cached. Default: 1h.
	ListTTL time.Duration
	// UserAgent sent with every request.
	UserAgent string
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.ListTTL <= 0 {
		c.ListTTL = time.Hour
	}
	if c.UserAgent == "" {
		c.UserAgent = "cjenik/1.0"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type cachedDir struct {
	entries []ziprange.Entry
	size    int64
}

// Client talks to the upstream archive service.
type Client struct {
	config Config
	client *http.Client
	reader *ziprange.Reader
	logger *slog.Logger

	mu    sync.Mutex
	dirs  map[string]cachedDir
	sizes map[string]int64

	listMu     sync.Mutex
	list       []Archive
	listLoaded time.Time
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		config: cfg,
		client: hc,
		reader: ziprange.New(hc, cfg.UserAgent),
		logger: cfg.Logger,
		dirs:   make(map[string]cachedDir),
		sizes:  make(map[string]int64),
	}
}

// ArchiveURL derives the archive URL for a date.
func (c *Client) ArchiveURL(date string) string {
	return fmt.Sprintf("%s/v0/archive/%s.zip", c.config.BaseURL, date)
}

// List returns the published archives, newest first. Responses are cached
// for ListTTL.
func (c *Client) List(ctx context.Context) ([]Archive, error) {
	c.listMu.Lock()
	defer c.listMu.Unlock()

	if c.list != nil && time.Since(c.listLoaded) < c.config.ListTTL {
		return c.list, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/v0/list", nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var payload struct {
		Archives []Archive `json:"archives"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("upstream: decode list: %w", err)
	}

	sort.Slice(payload.Archives, func(i, j int) bool {
		return payload.Archives[i].Date > payload.Archives[j].Date
	})
	c.list = payload.Archives
	c.listLoaded = time.Now()
	return c.list, nil
}

// ResolveDate maps a requested date to the closest date the upstream has:
// the date itself when listed, else the most recent listed date not after
// it, else the newest archive overall.
func (c *Client) ResolveDate(ctx context.Context, date string) (string, error) {
	archives, err := c.List(ctx)
	if err != nil {
		return "", err
	}
	if len(archives) == 0 {
		return "", ErrNoArchives
	}
	for _, a := range archives {
		if a.Date == date {
			return a.Date, nil
		}
	}
	for _, a := range archives {
		if a.Date < date {
			return a.Date, nil
		}
	}
	return archives[0].Date, nil
}

// probeSize issues a HEAD request for the archive's Content-Length.
func (c *Client) probeSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("upstream: new request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: head: %v", ErrUpstreamUnavailable, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: head returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, fmt.Errorf("%w: head without content length", ErrUpstreamUnavailable)
	}
	return resp.ContentLength, nil
}

// archiveSize resolves the total byte length of an archive: the cached list
// entry when the date is listed, a HEAD probe otherwise. Probed sizes are
// remembered per URL so a burst of member reads costs one probe.
func (c *Client) archiveSize(ctx context.Context, date, url string) (int64, error) {
	c.listMu.Lock()
	for _, a := range c.list {
		if a.Date == date && a.Size > 0 {
			c.listMu.Unlock()
			return a.Size, nil
		}
	}
	c.listMu.Unlock()

	c.mu.Lock()
	if size, ok := c.sizes[url]; ok {
		c.mu.Unlock()
		return size, nil
	}
	c.mu.Unlock()

	size, err := c.probeSize(ctx, url)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.sizes[url] = size
	c.mu.Unlock()
	return size, nil
}

// Directory returns the archive URL and its central directory for a date.
// The parsed directory is cached per URL and invalidated when the known
// size changes (a re-published archive).
func (c *Client) Directory(ctx context.Context, date string) (string, []ziprange.Entry, error) {
	url := c.ArchiveURL(date)

	size, err := c.archiveSize(ctx, date, url)
	if err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	if d, ok := c.dirs[url]; ok && d.size == size {
		c.mu.Unlock()
		return url, d.entries, nil
	}
	c.mu.Unlock()

	entries, err := c.reader.Directory(ctx, url, size)
	if err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	c.dirs[url] = cachedDir{entries: entries, size: size}
	c.mu.Unlock()

	c.logger.Debug("archive directory loaded", "date", date, "entries", len(entries), "size", size)
	return url, entries, nil
}

// Chains returns the chain codes present in the archive for a date: the
// top-level folder names that contain at least one member below them.
func (c *Client) Chains(ctx context.Context, date string) ([]string, error) {
	_, entries, err := c.Directory(ctx, date)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		chain, rest, ok := strings.Cut(e.Name, "/")
		if !ok || chain == "" || rest == "" {
			continue
		}
		seen[chain] = true
	}

	chains := make([]string, 0, len(seen))
	for chain := range seen {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	return chains, nil
}

// ReadCSV extracts one chain CSV from the archive. A missing member is
// common (some chains skip files on some days) and yields empty text.
func (c *Client) ReadCSV(ctx context.Context, date, chain string, file CSVFile) (string, error) {
	url, entries, err := c.Directory(ctx, date)
	if err != nil {
		return "", err
	}

	want := chain + "/" + string(file)
	for _, e := range entries {
		if e.Name != want {
			continue
		}
		return c.reader.ExtractText(ctx, url, e)
	}
	return "", nil
}
