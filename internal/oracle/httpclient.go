package oracle

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// retryLogger reports intermediate failures at WARN, since most are retried.
type retryLogger struct {
	logger *slog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...any) { l.logger.Warn(msg, keysAndValues...) }
func (l retryLogger) Warn(msg string, keysAndValues ...any)  { l.logger.Warn(msg, keysAndValues...) }
func (l retryLogger) Info(msg string, keysAndValues ...any)  { l.logger.Info(msg, keysAndValues...) }
func (l retryLogger) Debug(msg string, keysAndValues ...any) { l.logger.Debug(msg, keysAndValues...) }

// NewHTTPClient returns a pooled HTTP client that retries connection errors,
// 5xx responses (except 501) and 429, honoring Retry-After.
func NewHTTPClient(timeout time.Duration, retryMax int, logger *slog.Logger) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if retryMax < 0 {
		retryMax = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Transport = &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(retryLogger{logger})

	client := rc.StandardClient()
	client.Timeout = timeout
	return client
}
