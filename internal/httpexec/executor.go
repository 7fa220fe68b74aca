package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/pkg/util"
)

// PageSize is the fixed page size both sites paginate with.
const PageSize = 100

const requestTimeout = 30 * time.Second

// Auth carries a basic credential pair.
type Auth struct {
	Username string
	Password string
}

// RequestSpec declaratively describes a single API call.
type RequestSpec struct {
	Operation     string // short name used in log context
	Method        string
	URL           string
	Query         url.Values
	Body          []byte
	Headers       map[string]string
	Auth          Auth
	BackoffHeader string // response header naming seconds to wait after a 429
}

// Executor issues retryable HTTP calls. Retries are reserved for conditions
// where a later attempt is plausibly different: network timeouts and 429
// rate-limit responses. Everything else fails the call permanently.
type Executor struct {
	logger      *zap.Logger
	maxRetries  int
	defaultWait time.Duration
	sleep       func(time.Duration)
}

// New constructs an Executor with the configured retry bounds.
func New(maxRetries int, defaultWait time.Duration, logger *zap.Logger) *Executor {
	return &Executor{
		logger:      logger,
		maxRetries:  maxRetries,
		defaultWait: defaultWait,
		sleep:       time.Sleep,
	}
}

// Do executes the spec and returns the raw response body on 2xx.
// The retry budget is a bounded loop, not recursion, so pathological
// repeated 429s cannot grow the stack.
func (e *Executor) Do(ctx context.Context, spec RequestSpec) ([]byte, error) {
	remaining := e.maxRetries
	for {
		body, retryAfter, err := e.attempt(ctx, spec)
		if err == nil {
			return body, nil
		}

		var transient *transientError
		if !errors.As(err, &transient) {
			return nil, err
		}
		if remaining <= 0 {
			e.logger.Error("ran out of retries",
				zap.String("operation", spec.Operation),
				zap.String("url", spec.URL))
			return nil, util.NewTransientExhausted(spec.Operation, transient.cause)
		}
		remaining--

		wait := e.defaultWait
		if retryAfter > 0 {
			wait = retryAfter
		}
		e.logger.Info("sleeping before retry",
			zap.String("operation", spec.Operation),
			zap.Duration("wait", wait),
			zap.Int("remaining", remaining))
		e.sleep(wait)
	}
}

// PageCount executes a page-1 listing call and derives the number of pages
// from the total_entries field of the response.
func (e *Executor) PageCount(ctx context.Context, spec RequestSpec) (int, error) {
	body, err := e.Do(ctx, spec)
	if err != nil {
		return 0, err
	}
	var payload struct {
		TotalEntries int `json:"total_entries"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, util.NewPermanentCall(spec.Operation, err, nil)
	}
	e.logger.Info("total entries to process",
		zap.String("operation", spec.Operation),
		zap.Int("total_entries", payload.TotalEntries))
	return payload.TotalEntries/PageSize + 1, nil
}

type transientError struct {
	cause error
}

func (t *transientError) Error() string {
	return fmt.Sprintf("transient: %v", t.cause)
}

// attempt issues one call on a fresh client so retries never share
// connection state across workers.
func (e *Executor) attempt(ctx context.Context, spec RequestSpec) ([]byte, time.Duration, error) {
	client := &http.Client{Timeout: requestTimeout}

	var reader io.Reader
	if len(spec.Body) > 0 {
		reader = bytes.NewReader(spec.Body)
	} else {
		reader = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, reader)
	if err != nil {
		return nil, 0, util.NewPermanentCall(spec.Operation, err, nil)
	}
	if len(spec.Query) > 0 {
		req.URL.RawQuery = spec.Query.Encode()
	}
	for key, value := range spec.Headers {
		req.Header.Set(key, value)
	}
	if spec.Auth.Username != "" {
		req.SetBasicAuth(spec.Auth.Username, spec.Auth.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, &transientError{cause: err}
		}
		e.logger.Error("unexpected transport error",
			zap.String("operation", spec.Operation),
			zap.String("url", spec.URL),
			zap.Error(err))
		return nil, 0, util.NewPermanentCall(spec.Operation, err, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, backoffWait(resp.Header, spec.BackoffHeader), &transientError{
			cause: fmt.Errorf("rate limited: status %d", resp.StatusCode),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.logger.Error("unhandled status code",
			zap.Int("status", resp.StatusCode),
			zap.String("operation", spec.Operation),
			zap.String("method", spec.Method),
			zap.String("url", spec.URL),
			zap.String("params", spec.Query.Encode()),
			zap.ByteString("body", spec.Body),
			zap.Any("response_headers", resp.Header))
		return nil, 0, util.NewPermanentCall(spec.Operation,
			fmt.Errorf("status %d", resp.StatusCode),
			map[string]any{"status": resp.StatusCode, "url": spec.URL})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, util.NewPermanentCall(spec.Operation, err, nil)
	}
	return body, 0, nil
}

// backoffWait reads the provider's rate-limit header; unparseable or absent
// values fall back to the caller's default wait.
func backoffWait(headers http.Header, name string) time.Duration {
	if name == "" {
		return 0
	}
	raw := headers.Get(name)
	if raw == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
