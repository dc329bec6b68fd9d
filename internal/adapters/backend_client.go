package adapters

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
)

// BackendClient calls the storage backend's HTTP API.
type BackendClient struct {
	BaseURL string
	Timeout time.Duration
}

func NewBackendClient(baseURL string, timeout time.Duration) BackendClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return BackendClient{BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"), Timeout: timeout}
}

// TriggerSync asks the backend to start a parity sync in the background.
func (c BackendClient) TriggerSync(ctx context.Context) error {
	url := c.BaseURL + "/api/snapraid/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to create sync request").
			WithCause(err)
	}
	client := &http.Client{Timeout: c.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("sync request failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("sync request failed").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, url, strings.TrimSpace(string(body))))
	}
	return nil
}

var _ ports.BackendPort = BackendClient{}
