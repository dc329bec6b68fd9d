package adapters

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
)

const defaultProbeTimeout = 5 * time.Second

// HTTPProbe passes when a GET returns a 2xx status within the timeout.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration
}

func (p HTTPProbe) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return shared.HTTPStatusError(resp.StatusCode, p.URL)
	}
	return nil
}

// TCPProbe passes when a connection to Address can be opened.
type TCPProbe struct {
	Address string
	Timeout time.Duration
}

func (p TCPProbe) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

// ServiceProbe passes when the init system reports the unit active.
type ServiceProbe struct {
	Manager ports.ServiceManagerPort
	Unit    string
}

func (p ServiceProbe) Probe(ctx context.Context) error {
	active, err := p.Manager.IsActive(ctx, p.Unit)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%s is not active", p.Unit)
	}
	return nil
}

// ContainerProbe passes when the runtime reports the service running.
type ContainerProbe struct {
	Runtime  ports.ContainerRuntimePort
	StackDir string
	Service  string
}

func (p ContainerProbe) Probe(ctx context.Context) error {
	states, err := p.Runtime.Ps(ctx, p.StackDir)
	if err != nil {
		return err
	}
	for _, state := range states {
		if state.Service != p.Service && state.Name != p.Service {
			continue
		}
		if state.Running() {
			return nil
		}
		return fmt.Errorf("%s is %s", p.Service, state.State)
	}
	return fmt.Errorf("%s is not running", p.Service)
}

var (
	_ ports.ProbePort = HTTPProbe{}
	_ ports.ProbePort = TCPProbe{}
	_ ports.ProbePort = ServiceProbe{}
	_ ports.ProbePort = ContainerProbe{}
)
