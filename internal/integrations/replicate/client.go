package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	r8 "github.com/replicate/replicate-go"

	"decision-simulator/internal/domain"
	"decision-simulator/internal/integrations/paramstore"
)

const (
	defaultBaseURL      = "https://api.replicate.com/v1"
	defaultPollInterval = time.Second
	defaultMaxWait      = 2 * time.Minute

	// SDXLVersion is the stability-ai/sdxl model version used for portraits.
	SDXLVersion = "7762fd07cf82c948538e41f63dcace3b3b3b0f1377d9d1c3acf32fac5aebf59f"
)

var (
	// ErrNoToken means no credential is configured and the caller should run offline.
	ErrNoToken = errors.New("replicate: API token not configured")
	// ErrEmptyOutput is returned when a prediction succeeds without an image reference.
	ErrEmptyOutput = errors.New("replicate: prediction produced no output")
)

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

// TokenSource supplies the API token. Returning ErrNoToken switches the caller
// to offline mode.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token read from the environment.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(string(t)), nil
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type paramStoreToken struct {
	getter Getter
	name   string
}

// ParamStoreToken reads the token from a SecureString parameter holding
// {"token": "..."}. A missing parameter is reported as ErrNoToken.
func ParamStoreToken(getter Getter, name string) TokenSource {
	return paramStoreToken{getter: getter, name: name}
}

func (p paramStoreToken) Token(ctx context.Context) (string, error) {
	return fetchAPIKeyFromParamStore(ctx, p.getter, p.name)
}

// Client creates text-to-image predictions and waits for their output.
type Client struct {
	baseURL      string
	version      string
	httpClient   *http.Client
	tokens       TokenSource
	pollInterval time.Duration
	maxWait      time.Duration

	keyMu       sync.Mutex
	keyResolved bool
	apiKey      string
	keyErr      error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModelVersion(version string) Option {
	return func(c *Client) {
		c.version = strings.TrimSpace(version)
	}
}

// WithPolling sets how often a pending prediction is polled and how long to
// wait for it in total.
func WithPolling(interval, maxWait time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.maxWait = maxWait
	}
}

// NewClient creates a Client. The token is resolved on the first call to
// GenerateImage and reused for the lifetime of the process once it succeeds
// or is known to be absent.
func NewClient(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("replicate: token source must not be nil")
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		version:      SDXLVersion,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		tokens:       tokens,
		pollInterval: defaultPollInterval,
		maxWait:      defaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.version == "" {
		return nil, errors.New("replicate: model version must not be empty")
	}
	if c.pollInterval <= 0 || c.maxWait <= 0 {
		return nil, errors.New("replicate: polling interval and max wait must be positive")
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.keyResolved {
		return c.apiKey, c.keyErr
	}
	key, err := c.tokens.Token(ctx)
	if err != nil && !errors.Is(err, ErrNoToken) {
		// transient; try again next call
		return "", err
	}
	c.apiKey, c.keyErr, c.keyResolved = key, err, true
	return key, err
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// GenerateImage runs one prediction and returns the first produced image reference.
func (c *Client) GenerateImage(ctx context.Context, in domain.ImageRequest) (string, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return "", errors.New("replicate: prompt must not be empty")
	}

	api, err := c.api(ctx)
	if err != nil {
		return "", err
	}

	input := r8.PredictionInput{
		"prompt":              in.Prompt,
		"width":               in.Width,
		"height":              in.Height,
		"num_inference_steps": in.Steps,
		"guidance_scale":      in.GuidanceScale,
	}
	if in.NegativePrompt != "" {
		input["negative_prompt"] = in.NegativePrompt
	}

	pred, err := api.CreatePrediction(ctx, c.version, input, nil, false)
	if err != nil {
		return "", fmt.Errorf("replicate: create prediction: %w", err)
	}

	if !terminal(pred.Status) {
		waitCtx, cancel := context.WithTimeout(ctx, c.maxWait)
		defer cancel()
		if err := api.Wait(waitCtx, pred, r8.WithPollingInterval(c.pollInterval)); err != nil {
			return "", fmt.Errorf("replicate: prediction %s not finished within %s: %w", pred.ID, c.maxWait, err)
		}
	}

	switch pred.Status {
	case r8.Succeeded:
		return firstOutput(pred.Output)
	case r8.Failed, r8.Canceled:
		return "", fmt.Errorf("replicate: prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	default:
		return "", fmt.Errorf("replicate: prediction %s ended in status %q", pred.ID, pred.Status)
	}
}

// api builds an SDK client for the resolved token.
func (c *Client) api(ctx context.Context) (*r8.Client, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	opts := []r8.ClientOption{
		r8.WithToken(apiKey),
		r8.WithHTTPClient(c.resolvedHTTPClient()),
	}
	if c.baseURL != "" {
		opts = append(opts, r8.WithBaseURL(c.baseURL))
	}
	api, err := r8.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: create client: %w", err)
	}
	return api, nil
}

func terminal(s r8.Status) bool {
	return s == r8.Succeeded || s == r8.Failed || s == r8.Canceled
}

// firstOutput accepts either a list of references or a single reference.
func firstOutput(out r8.PredictionOutput) (string, error) {
	switch v := out.(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok && s != "" {
				return s, nil
			}
		}
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0], nil
		}
	}
	return "", ErrEmptyOutput
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("replicate: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("replicate: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		if errors.Is(err, paramstore.ErrNotFound) {
			return "", fmt.Errorf("%w: %v", ErrNoToken, err)
		}
		return "", fmt.Errorf("replicate: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("replicate: unmarshal paramstore token value as JSON: %w", err)
	}
	if strings.TrimSpace(tp.Token) == "" {
		return "", ErrNoToken
	}
	return strings.TrimSpace(tp.Token), nil
}
