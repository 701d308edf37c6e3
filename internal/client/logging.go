package client

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// loggingTransport logs method, URL, status and latency. Headers and bodies
// carry credentials and are never logged.
type loggingTransport struct {
	base http.RoundTripper
	log  *zap.SugaredLogger
}

func (l *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := l.base.RoundTrip(req)
	if err != nil {
		l.log.Warnw("HTTP request failed", "method", req.Method, "url", req.URL.Redacted(), "latency", time.Since(start), "error", err)
		return nil, err
	}
	l.log.Infow("HTTP request", "method", req.Method, "url", req.URL.Redacted(), "status", resp.StatusCode, "latency", time.Since(start))
	return resp, nil
}
