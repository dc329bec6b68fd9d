package ports

import "context"

// ProbePort checks one aspect of the running stack. A nil error is a pass.
type ProbePort interface {
	Probe(ctx context.Context) error
}
