package ports

import (
	"context"

	"storagectl/internal/types"
)

type MetadataPort interface {
	Read(ctx context.Context) (types.Deployment, bool, error)
	Write(ctx context.Context, deployment types.Deployment) error
	Remove(ctx context.Context) error
}

type JournalPort interface {
	Begin(ctx context.Context, record types.RunRecord) error
	Finish(ctx context.Context, record types.RunRecord) error
	Recent(ctx context.Context, limit int) ([]types.RunRecord, error)
	Close() error
}

type LockPort interface {
	Acquire(ctx context.Context) (release func() error, err error)
	Holder(ctx context.Context) (int, bool)
}

type MetricsPort interface {
	RecordRun(ctx context.Context, result types.OperationResult) error
}

type PrompterPort interface {
	Prompt(ctx context.Context, message string) (string, error)
}
