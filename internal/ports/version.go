package ports

import "context"

type RemoteVersionPort interface {
	LatestTag(ctx context.Context) (string, error)
}
