package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
)

const defaultHTTPRetries = 3
const defaultHTTPRetryDelay = 200 * time.Millisecond
const defaultHTTPTimeout = 10 * time.Second
const maxHTTPRetryDelay = 2 * time.Second

// HTTPVersionSource reads the latest release tag from a metadata endpoint
// answering {"tag": "..."}.
type HTTPVersionSource struct {
	Endpoint   string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

func NewHTTPVersionSource(endpoint string, timeout time.Duration, retries int, retryDelay time.Duration) HTTPVersionSource {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if retries <= 0 {
		retries = defaultHTTPRetries
	}
	if retryDelay <= 0 {
		retryDelay = defaultHTTPRetryDelay
	}
	return HTTPVersionSource{
		Endpoint:   endpoint,
		Timeout:    timeout,
		Retries:    retries,
		RetryDelay: retryDelay,
	}
}

type releaseMetadata struct {
	Tag     string `json:"tag"`
	TagName string `json:"tag_name"`
}

func (s HTTPVersionSource) LatestTag(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.Endpoint) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("version endpoint is empty")
	}
	var lastErr error
	for attempt := 0; attempt < s.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tag, retry, err := s.fetchOnce(ctx)
		if err == nil {
			return tag, nil
		}
		lastErr = err
		if !retry || attempt == s.Retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryDelay(s.RetryDelay, attempt)):
		}
	}
	return "", lastErr
}

func (s HTTPVersionSource) fetchOnce(ctx context.Context) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint, nil)
	if err != nil {
		return "", false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to create version request").
			WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	client := &http.Client{Timeout: s.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", true, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("version lookup failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return "", retry, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("version lookup failed").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, s.Endpoint, strings.TrimSpace(string(body))))
	}
	var meta releaseMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("invalid version metadata").
			WithCause(err)
	}
	tag := strings.TrimSpace(meta.Tag)
	if tag == "" {
		tag = strings.TrimSpace(meta.TagName)
	}
	if tag == "" {
		return "", false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("version metadata has no tag")
	}
	return tag, false, nil
}

func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<attempt)
	if delay > maxHTTPRetryDelay {
		delay = maxHTTPRetryDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}

var _ ports.RemoteVersionPort = HTTPVersionSource{}
