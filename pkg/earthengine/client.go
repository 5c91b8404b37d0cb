// Package earthengine is a small client for the Google Earth Engine REST API:
// expression evaluation, map creation and tile fetching.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sells-group/lakewatch/internal/resilience"
)

const (
	defaultBaseURL = "https://earthengine.googleapis.com/v1"
	defaultProject = "earthengine-legacy"
)

// Client evaluates expressions and serves map tiles from Earth Engine.
type Client interface {
	// Compute evaluates an expression and returns the JSON result.
	Compute(ctx context.Context, expr Expr) (json.RawMessage, error)
	// CreateMap registers a visualized image for tile serving.
	CreateMap(ctx context.Context, expr Expr, vis Visualization) (*MapID, error)
	// FetchTile downloads one tile of a map created by CreateMap.
	FetchTile(ctx context.Context, mapName string, z, x, y int) ([]byte, string, error)
	// Ping evaluates a trivial expression to verify credentials and access.
	Ping(ctx context.Context) error
}

// Visualization controls how CreateMap renders an image.
type Visualization struct {
	Min     float64
	Max     float64
	Palette []string // hex colors without '#', or CSS names
	Bands   []string
}

// MapID identifies a map created on Earth Engine.
type MapID struct {
	Name    string `json:"name"`
	baseURL string
}

// TileURL returns the upstream tile URL template with {z}/{x}/{y} placeholders.
func (m *MapID) TileURL() string {
	return fmt.Sprintf("%s/%s/tiles/{z}/{x}/{y}", m.baseURL, m.Name)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithProject sets the cloud project that requests are billed to.
func WithProject(project string) Option {
	return func(c *httpClient) {
		if project != "" {
			c.project = project
		}
	}
}

// WithHTTPClient overrides the default http.Client. It takes precedence over
// WithTokenSource.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTokenSource authorizes requests with OAuth2 bearer tokens.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *httpClient) {
		c.tokens = ts
	}
}

// WithRateLimit paces requests to qps with the given burst.
func WithRateLimit(qps float64, burst int) Option {
	return func(c *httpClient) {
		if qps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(qps), max(burst, 1))
		}
	}
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuitBreaker guards every request with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

// WithObserver receives the method name and outcome of every request.
func WithObserver(fn func(method, outcome string)) Option {
	return func(c *httpClient) {
		c.observe = fn
	}
}

type httpClient struct {
	baseURL string
	project string
	http    *http.Client
	tokens  oauth2.TokenSource
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	observe func(method, outcome string)
}

// NewClient creates an Earth Engine REST client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		project: defaultProject,
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.tokens != nil {
		authed := *c.http
		base := authed.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		authed.Transport = &oauth2.Transport{Source: c.tokens, Base: base}
		c.http = &authed
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("earthengine", "request")
	}
	return c
}

type computeRequest struct {
	Expression *Expression `json:"expression"`
}

type computeResponse struct {
	Result json.RawMessage `json:"result"`
}

func (c *httpClient) Compute(ctx context.Context, expr Expr) (json.RawMessage, error) {
	serialized, err := Serialize(expr)
	if err != nil {
		return nil, err
	}

	var resp computeResponse
	url := fmt.Sprintf("%s/projects/%s/value:compute", c.baseURL, c.project)
	if err := c.postJSON(ctx, "compute", url, computeRequest{Expression: serialized}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return resp.Result, nil
}

type mapRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type visualizationOptions struct {
	Ranges        []mapRange `json:"ranges,omitempty"`
	PaletteColors []string   `json:"paletteColors,omitempty"`
}

type createMapRequest struct {
	Expression           *Expression          `json:"expression"`
	FileFormat           string               `json:"fileFormat"`
	BandIDs              []string             `json:"bandIds,omitempty"`
	VisualizationOptions visualizationOptions `json:"visualizationOptions"`
}

func (c *httpClient) CreateMap(ctx context.Context, expr Expr, vis Visualization) (*MapID, error) {
	serialized, err := Serialize(expr)
	if err != nil {
		return nil, err
	}

	body := createMapRequest{
		Expression: serialized,
		FileFormat: "PNG",
		BandIDs:    vis.Bands,
		VisualizationOptions: visualizationOptions{
			Ranges:        []mapRange{{Min: vis.Min, Max: vis.Max}},
			PaletteColors: vis.Palette,
		},
	}

	var m MapID
	url := fmt.Sprintf("%s/projects/%s/maps", c.baseURL, c.project)
	if err := c.postJSON(ctx, "maps.create", url, body, &m); err != nil {
		return nil, err
	}
	if m.Name == "" {
		return nil, eris.New("earthengine: map response missing name")
	}
	m.baseURL = c.baseURL
	return &m, nil
}

func (c *httpClient) FetchTile(ctx context.Context, mapName string, z, x, y int) ([]byte, string, error) {
	url := fmt.Sprintf("%s/%s/tiles/%d/%d/%d", c.baseURL, mapName, z, x, y)

	type tile struct {
		data        []byte
		contentType string
	}
	t, err := doRequest(ctx, c, "maps.tiles.get", func(ctx context.Context) (tile, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return tile{}, eris.Wrap(err, "earthengine: create tile request")
		}
		data, header, err := c.send(req)
		if err != nil {
			return tile{}, err
		}
		ct := header.Get("Content-Type")
		if ct == "" {
			ct = "image/png"
		}
		return tile{data: data, contentType: ct}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return t.data, t.contentType, nil
}

func (c *httpClient) Ping(ctx context.Context) error {
	raw, err := c.Compute(ctx, Invoke("Number.add", map[string]Expr{
		"left":  Constant(1),
		"right": Constant(1),
	}))
	if err != nil {
		return eris.Wrap(err, "earthengine: ping")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil || n != 2 {
		return eris.Errorf("earthengine: ping returned %s", string(raw))
	}
	return nil
}

func (c *httpClient) postJSON(ctx context.Context, method, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrapf(err, "earthengine: marshal %s request", method)
	}

	respBody, err := c.do(ctx, method, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, eris.Wrapf(err, "earthengine: create %s request", method)
		}
		req.Header.Set("Content-Type", "application/json")
		data, _, err := c.send(req)
		return data, err
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "earthengine: unmarshal %s response", method)
	}
	return nil
}

// doRequest paces, guards and retries a single logical request.
func doRequest[T any](ctx context.Context, c *httpClient, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := func(ctx context.Context) (T, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrap(err, "earthengine: rate limit wait")
			}
		}
		if c.breaker != nil {
			return resilience.ExecuteVal(ctx, c.breaker, fn)
		}
		return fn(ctx)
	}

	start := time.Now()
	val, err := resilience.DoVal(ctx, c.retry, attempt)
	c.report(method, err)
	zap.L().Debug("earthengine: request",
		zap.String("method", method),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	return val, err
}

func (c *httpClient) do(ctx context.Context, method string, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return doRequest(ctx, c, method, fn)
}

func (c *httpClient) send(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if IsAuthError(err) {
			return nil, nil, eris.Wrap(ErrNotAuthenticated, err.Error())
		}
		return nil, nil, eris.Wrap(err, "earthengine: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, eris.Wrap(err, "earthengine: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, decodeError(resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

func (c *httpClient) report(method string, err error) {
	if c.observe == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsAuthError(err):
		outcome = "unauthenticated"
	case resilience.IsTransient(err):
		outcome = "transient"
	default:
		outcome = "error"
	}
	c.observe(method, outcome)
}
