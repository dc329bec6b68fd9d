package adapters

import (
	"context"
	"errors"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/subosito/gotenv"

	"storagectl/internal/ports"
	"storagectl/internal/shared"
	"storagectl/internal/types"
)

const (
	metaVersion     = "STORAGECTL_VERSION"
	metaRef         = "STORAGECTL_REF"
	metaRepoURL     = "STORAGECTL_REPO_URL"
	metaInstalledAt = "STORAGECTL_INSTALLED_AT"
	metaUpdatedAt   = "STORAGECTL_UPDATED_AT"
	metaForced      = "STORAGECTL_FORCED"
	metaKeepData    = "STORAGECTL_KEEP_DATA"
	metaLastBackup  = "STORAGECTL_LAST_BACKUP"
)

// MetadataFile stores the deployment record as a dotenv file, so it can
// be sourced by shell tooling on the host.
type MetadataFile struct {
	Path string
}

func NewMetadataFile(path string) MetadataFile {
	return MetadataFile{Path: path}
}

func (m MetadataFile) Read(ctx context.Context) (types.Deployment, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Deployment{}, false, err
	}
	if strings.TrimSpace(m.Path) == "" {
		return types.Deployment{}, false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("metadata path is empty")
	}
	env, err := gotenv.Read(m.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Deployment{}, false, nil
		}
		return types.Deployment{}, false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read deployment metadata").
			WithCause(err)
	}
	deployment := types.Deployment{
		Version:     env[metaVersion],
		Ref:         env[metaRef],
		RepoURL:     env[metaRepoURL],
		InstalledAt: parseMetaTime(env[metaInstalledAt]),
		UpdatedAt:   parseMetaTime(env[metaUpdatedAt]),
		Forced:      parseMetaBool(env[metaForced]),
		KeepData:    parseMetaBool(env[metaKeepData]),
		LastBackup:  env[metaLastBackup],
	}
	return deployment, true, nil
}

func (m MetadataFile) Write(ctx context.Context, deployment types.Deployment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := gotenv.Env{
		metaVersion:  deployment.Version,
		metaRef:      deployment.Ref,
		metaRepoURL:  deployment.RepoURL,
		metaForced:   strconv.FormatBool(deployment.Forced),
		metaKeepData: strconv.FormatBool(deployment.KeepData),
	}
	if !deployment.InstalledAt.IsZero() {
		env[metaInstalledAt] = deployment.InstalledAt.UTC().Format(time.RFC3339)
	}
	if !deployment.UpdatedAt.IsZero() {
		env[metaUpdatedAt] = deployment.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if deployment.LastBackup != "" {
		env[metaLastBackup] = deployment.LastBackup
	}
	content, err := gotenv.Marshal(env)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode deployment metadata").
			WithCause(err)
	}
	if _, err := shared.WriteFileIfChanged(m.Path, []byte(content+"\n"), 0o640); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write deployment metadata").
			WithCause(err)
	}
	return nil
}

func (m MetadataFile) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := shared.RemoveIfExists(m.Path)
	return err
}

func parseMetaTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func parseMetaBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

var _ ports.MetadataPort = MetadataFile{}
