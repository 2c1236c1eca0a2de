// Package backend is the typed client for the external logistics API that
// owns loads, packages, persisted routes and GPS fixes. Every response is
// decoded into an explicit schema and validated before it is returned.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"shipnorth/internal/metrics"
)

// ErrMalformedResponse marks a backend payload that failed schema validation.
var ErrMalformedResponse = errors.New("malformed backend response")

// StatusError is returned for non-2xx backend responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

type Options struct {
	BaseURL   string
	Token     string
	JWTSecret string
	Timeout   time.Duration
	RPS       float64
	HTTP      *http.Client
}

type Client struct {
	baseURL   string
	token     string
	jwtSecret []byte
	http      *http.Client
	limiter   *rate.Limiter

	maxAttempts int
	backoff     time.Duration
}

func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base URL must not be empty")
	}
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		burst := int(opts.RPS)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return &Client{
		baseURL:     base,
		token:       opts.Token,
		jwtSecret:   []byte(opts.JWTSecret),
		http:        hc,
		limiter:     lim,
		maxAttempts: 4,
		backoff:     200 * time.Millisecond,
	}, nil
}

// serviceToken returns the bearer credential for outgoing calls. A configured
// JWT secret takes precedence and yields a short-lived HS256 token.
func (c *Client) serviceToken() (string, error) {
	if len(c.jwtSecret) == 0 {
		return c.token, nil
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "route-editor",
		Subject:   "route-editor",
		Audience:  jwt.ClaimStrings{"logistics-api"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	})
	return token.SignedString(c.jwtSecret)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	tok, err := c.serviceToken()
	if err != nil {
		return nil, fmt.Errorf("sign service token: %w", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// call performs one logical operation: rate limiting, retries for transient
// failures when retry is set, and decoding of a 2xx JSON body into out.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any, retry bool) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			log.Printf("op=backend.%s dur=%dms err=%v", op, time.Since(start).Milliseconds(), err)
		} else {
			log.Printf("op=backend.%s dur=%dms", op, time.Since(start).Milliseconds())
		}
		metrics.BackendRequests.WithLabelValues(op, outcome).Inc()
		metrics.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	if in != nil {
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
	}
	attempts := 1
	if retry {
		attempts = c.maxAttempts
	}
	resp, err := c.doWithRetry(ctx, attempts, func() (*http.Request, error) {
		return c.newRequest(ctx, method, path, body)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: decode: %v", op, ErrMalformedResponse, err)
	}
	return nil
}

// doWithRetry retries network errors and 429/5xx responses using exponential
// backoff while respecting context cancellation.
func (c *Client) doWithRetry(ctx context.Context, maxAttempts int, makeReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
