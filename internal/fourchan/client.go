package fourchan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-archiver/internal/archive"
	"github.com/JakeFAU/board-archiver/internal/clock/system"
	"github.com/JakeFAU/board-archiver/internal/metrics"
	"github.com/JakeFAU/board-archiver/internal/policy/ratelimit"
)

// Default remote endpoints.
const (
	DefaultAPIURL   = "https://a.4cdn.org"
	DefaultMediaURL = "https://i.4cdn.org"
)

// Endpoint labels used for metrics and logs.
const (
	endpointBoards     = "boards"
	endpointThreads    = "threads"
	endpointThread     = "thread"
	endpointAttachment = "attachment"
	endpointThumbnail  = "thumbnail"
)

// Config controls the client's endpoints, pacing and retries.
type Config struct {
	APIURL            string
	MediaURL          string
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
}

// Client talks to the remote board API. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   retryPolicy
	ledger  *Ledger
	clock   archive.Clock
	logger  *zap.Logger
}

var _ archive.Client = (*Client)(nil)

// New builds a Client. The ledger records successful thread fetches and is
// consulted by FetchThread.
func New(cfg Config, ledger *Ledger, clock archive.Clock, logger *zap.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.MediaURL == "" {
		cfg.MediaURL = DefaultMediaURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffInitial {
		cfg.BackoffMax = cfg.BackoffInitial
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.MediaURL = strings.TrimRight(cfg.MediaURL, "/")
	if ledger == nil {
		ledger = NewLedger()
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: newHTTPTransport(),
			Timeout:   cfg.Timeout,
		},
		limiter: ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}),
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			min:        cfg.BackoffInitial,
			max:        cfg.BackoffMax,
		},
		ledger: ledger,
		clock:  clock,
		logger: logger.Named("fourchan"),
	}
}

// Ledger returns the ledger shared by this client.
func (c *Client) Ledger() *Ledger {
	return c.ledger
}

// ListBoards fetches the board directory.
func (c *Client) ListBoards(ctx context.Context) ([]archive.Board, error) {
	target := c.cfg.APIURL + "/boards.json"
	resp, err := c.get(ctx, endpointBoards, target, nil)
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, unexpectedStatus(resp.code, target)
	}
	var payload struct {
		Boards []archive.Board `json:"boards"`
	}
	if err := decode(resp.body, target, &payload); err != nil {
		return nil, err
	}
	return payload.Boards, nil
}

// ListThreadPages fetches the thread index of a board.
func (c *Client) ListThreadPages(ctx context.Context, board string) ([]archive.ThreadIndexPage, error) {
	target := fmt.Sprintf("%s/%s/threads.json", c.cfg.APIURL, url.PathEscape(board))
	resp, err := c.get(ctx, endpointThreads, target, nil)
	if err != nil {
		return nil, err
	}
	if resp.code != http.StatusOK {
		return nil, unexpectedStatus(resp.code, target)
	}
	var pages []archive.ThreadIndexPage
	if err := decode(resp.body, target, &pages); err != nil {
		return nil, err
	}
	return pages, nil
}

// FetchThread fetches a thread, sending If-Modified-Since when the ledger
// holds a previous successful fetch.
func (c *Client) FetchThread(ctx context.Context, board string, threadNo int64) (archive.ThreadResult, error) {
	since, _ := c.ledger.Get(board, threadNo)
	return c.FetchThreadSince(ctx, board, threadNo, since)
}

// FetchThreadSince fetches a thread conditionally on since. A zero since
// issues an unconditional request.
func (c *Client) FetchThreadSince(
	ctx context.Context,
	board string,
	threadNo int64,
	since time.Time,
) (archive.ThreadResult, error) {
	target := fmt.Sprintf("%s/%s/thread/%d.json", c.cfg.APIURL, url.PathEscape(board), threadNo)
	header := http.Header{}
	if !since.IsZero() {
		header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}
	resp, err := c.get(ctx, endpointThread, target, header)
	if err != nil {
		return archive.ThreadResult{}, err
	}
	switch resp.code {
	case http.StatusNotModified:
		return archive.NotModified(), nil
	case http.StatusNotFound:
		return archive.NotFound(), nil
	case http.StatusOK:
	default:
		return archive.ThreadResult{}, unexpectedStatus(resp.code, target)
	}
	var payload struct {
		Posts []archive.Post `json:"posts"`
	}
	if err := decode(resp.body, target, &payload); err != nil {
		return archive.ThreadResult{}, err
	}
	c.ledger.Set(board, threadNo, c.clock.Now())
	return archive.Found(payload.Posts), nil
}

// FetchAttachment downloads the full attachment {tim}{ext} of a board.
func (c *Client) FetchAttachment(ctx context.Context, board string, tim int64, ext string) ([]byte, error) {
	target := fmt.Sprintf("%s/%s/%d%s", c.cfg.MediaURL, url.PathEscape(board), tim, ext)
	return c.fetchMedia(ctx, endpointAttachment, target)
}

// FetchThumbnail downloads the thumbnail {tim}s.jpg of a board.
func (c *Client) FetchThumbnail(ctx context.Context, board string, tim int64) ([]byte, error) {
	target := fmt.Sprintf("%s/%s/%d%s", c.cfg.MediaURL, url.PathEscape(board), tim, archive.ThumbnailSuffix)
	return c.fetchMedia(ctx, endpointThumbnail, target)
}

func (c *Client) fetchMedia(ctx context.Context, endpoint, target string) ([]byte, error) {
	resp, err := c.get(ctx, endpoint, target, nil)
	if err != nil {
		return nil, err
	}
	switch resp.code {
	case http.StatusOK:
		return resp.body, nil
	case http.StatusNotFound:
		return nil, archive.ErrNotFound.Wrap(&archive.StatusError{Code: resp.code, URL: target})
	default:
		return nil, unexpectedStatus(resp.code, target)
	}
}

type response struct {
	code int
	body []byte
}

// get performs a paced GET, retrying transport failures, 429 and 5xx
// responses. Any other response is returned to the caller to interpret.
func (c *Client) get(ctx context.Context, endpoint, target string, header http.Header) (response, error) {
	boff := c.retry.backoff()
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, endpoint, target, header)
		switch {
		case err != nil:
			if !retryableError(ctx, err) {
				return response{}, err
			}
			lastErr = err
		case retryableStatus(resp.code):
			lastErr = unexpectedStatus(resp.code, target)
		default:
			return resp, nil
		}
		if attempt >= c.retry.maxRetries {
			return response{}, lastErr
		}
		wait := boff.Duration()
		c.logger.Debug("retrying remote request",
			zap.String("endpoint", endpoint),
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, wait); err != nil {
			return response{}, archive.ErrTransport.Wrap(fmt.Errorf("retry %s: %w", target, err))
		}
	}
}

func (c *Client) do(ctx context.Context, endpoint, target string, header http.Header) (response, error) {
	if err := c.limiter.Wait(ctx, target); err != nil {
		return response{}, archive.ErrTransport.Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, archive.ErrTransport.Wrap(fmt.Errorf("build request %s: %w", target, err))
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRemoteRequest(endpoint, 0, time.Since(start))
		return response{}, archive.ErrTransport.Wrap(fmt.Errorf("get %s: %w", target, err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.String("url", target), zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	metrics.ObserveRemoteRequest(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return response{}, archive.ErrTransport.Wrap(fmt.Errorf("read %s: %w", target, err))
	}
	return response{code: resp.StatusCode, body: body}, nil
}

func decode(body []byte, target string, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return archive.ErrDecode.Wrap(fmt.Errorf("decode %s: %w", target, err))
	}
	return nil
}

func unexpectedStatus(code int, target string) error {
	return archive.ErrTransport.Wrap(&archive.StatusError{Code: code, URL: target})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
