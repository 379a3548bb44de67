// Package dispatch sends generation jobs to the AI generation service.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/internal/httpclient"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
)

const (
	// JobIDHeader carries the job id on every generation request
	JobIDHeader = "X-Job-ID"

	// DefaultBaseURL is where the generation service listens by default
	DefaultBaseURL = "http://localhost:5001"

	// maxErrorBody bounds how much of a failed response ends up in the job's error
	maxErrorBody = 512

	// maxResultBody bounds a successful response
	maxResultBody = 1 << 20
)

var paths = map[async.Kind]string{
	async.KindAutomated: "/generate/automated",
	async.KindAudio:     "/generate/audio",
	async.KindFace:      "/generate/face",
	async.KindVideo:     "/generate/video",
}

// Path returns the generation endpoint for kind.
func Path(kind async.Kind) (string, bool) {
	p, ok := paths[kind]
	return p, ok
}

// Config configures the HTTP dispatcher.
type Config struct {
	BaseURL string
	// RequestsPerMinute limits outbound calls. Zero means unlimited.
	RequestsPerMinute int
	BlockPrivateIPs   bool
}

// Client dispatches jobs over HTTP. Safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *httpclient.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient validates cfg and builds a dispatcher.
func NewClient(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerMinute < 0 {
		return nil, errors.NewFieldError("generation.requests_per_minute", "must not be negative, got %d", cfg.RequestsPerMinute)
	}
	if log == nil {
		log = logger.Logger
	}

	hc := httpclient.New(httpclient.Options{BlockPrivateIPs: cfg.BlockPrivateIPs})
	base, err := hc.ValidateURL(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		err = errors.Wrap(err, "invalid generation service URL")
		return nil, errors.WithDetail(err, "URL: "+cfg.BaseURL)
	}

	c := &Client{
		base:   base,
		http:   hc,
		logger: log.Named("dispatch"),
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// BaseURL returns the generation service root.
func (c *Client) BaseURL() string { return c.base.String() }

// Dispatch POSTs the job's parameters to the kind's endpoint and decodes the
// returned output locations.
func (c *Client) Dispatch(ctx context.Context, job *async.Job) (async.Result, error) {
	path, ok := Path(job.Kind)
	if !ok {
		return nil, errors.NewFieldError("kind", "no generation endpoint for %q", string(job.Kind))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &async.DispatchError{Kind: async.DispatchUnavailable, Err: errors.Wrap(err, "rate limit wait")}
		}
	}

	body, err := json.Marshal(job.Params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode job parameters")
	}

	endpoint := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build generation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(JobIDHeader, job.ID)

	log := logger.LoggerFromContext(ctx, c.logger)
	log.Debugw("Calling generation service", logger.FieldKind, job.Kind, logger.FieldURL, endpoint)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &async.DispatchError{Kind: async.DispatchUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		log.Warnw("Generation service returned an error",
			logger.FieldKind, job.Kind,
			logger.FieldHTTPStatus, resp.StatusCode)
		return nil, &async.DispatchError{
			Kind:       async.DispatchGenerationFailed,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(snippet)), maxErrorBody),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBody))
	if err != nil {
		return nil, &async.DispatchError{Kind: async.DispatchUnavailable, Err: errors.Wrap(err, "failed to read response")}
	}
	return decodeResult(raw, resp.StatusCode)
}

// decodeResult parses a success body. An empty body is an empty result.
func decodeResult(raw []byte, status int) (async.Result, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return async.Result{}, nil
	}
	var result async.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &async.DispatchError{
			Kind:       async.DispatchGenerationFailed,
			StatusCode: status,
			Body:       "malformed response: " + truncate(string(raw), 64),
		}
	}
	if result == nil {
		result = async.Result{}
	}
	return result, nil
}

// truncate cuts s to at most n bytes without splitting a rune, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

var _ async.Dispatcher = (*Client)(nil)
