package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// NewThrottlingAwareClient Wraps given client and retries requests answered with HTTP 429 after the time the server asks for.
// Any other response or error is passed through to the caller.
func NewThrottlingAwareClient(httpClient *http.Client, maxRetries int, requestLogger func(format string, args ...interface{})) *http.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.Logger = debugLogger{inner: requestLogger}

	client.RetryMax = maxRetries
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil || resp == nil {
			return false, err
		}
		return resp.StatusCode == http.StatusTooManyRequests, nil
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp == nil {
			return min
		}
		return retryAfter(resp.Header.Get("retry-after"), time.Now(), min)
	}

	return client.StandardClient()
}

// retryAfter parses Retry-After given either in seconds or as HTTP date.
func retryAfter(header string, now time.Time, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	at, err := time.Parse(time.RFC1123, header)
	if err != nil {
		return fallback
	}

	// the header is rounded to whole seconds
	at = at.Add(time.Millisecond * 750)

	if at.After(now) {
		return at.Sub(now)
	}
	return 0
}

type debugLogger struct {
	inner func(format string, args ...interface{})
}

func (l debugLogger) Printf(format string, args ...interface{}) {
	format = strings.ReplaceAll(format, "[DEBUG] ", "")
	format = strings.ReplaceAll(format, "%s", "%v")
	l.inner(format, args...)
}
