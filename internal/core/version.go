package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"
	debversion "github.com/knqyf263/go-deb-version"
	"github.com/rs/zerolog/log"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

const (
	VersionSourceRemote     = "remote"
	VersionSourceGit        = "git"
	VersionSourceConfigured = "configured"
)

// VersionResolver finds the deployed version and the newest published
// one. Versions are opaque tags.
type VersionResolver struct {
	Metadata  ports.MetadataPort
	Remote    ports.RemoteVersionPort
	Source    ports.SourceFetcherPort
	SourceDir string
}

// Current returns the version recorded for the deployed instance.
func (r VersionResolver) Current(ctx context.Context) (string, error) {
	deployment, ok, err := r.Metadata.Read(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("not installed")
	}
	return strings.TrimSpace(deployment.Version), nil
}

// Latest asks the remote metadata endpoint first and falls back to the
// newest tag of the local checkout. When both fail the error reports the
// network as unavailable.
func (r VersionResolver) Latest(ctx context.Context) (string, string, error) {
	var failures []string
	if r.Remote != nil {
		tag, err := r.Remote.LatestTag(ctx)
		if err == nil && strings.TrimSpace(tag) != "" {
			return strings.TrimSpace(tag), VersionSourceRemote, nil
		}
		if err == nil {
			err = fmt.Errorf("empty tag")
		}
		log.Ctx(ctx).Debug().Err(err).Msg("remote version lookup failed")
		failures = append(failures, "remote: "+err.Error())
	} else {
		failures = append(failures, "remote: not configured")
	}
	if r.Source != nil && strings.TrimSpace(r.SourceDir) != "" {
		tag, err := r.Source.DescribeTag(ctx, r.SourceDir)
		if err == nil && strings.TrimSpace(tag) != "" {
			return strings.TrimSpace(tag), VersionSourceGit, nil
		}
		if err == nil {
			err = fmt.Errorf("no tags")
		}
		log.Ctx(ctx).Debug().Err(err).Msg("git tag lookup failed")
		failures = append(failures, "git: "+err.Error())
	}
	return "", "", errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("network unavailable: " + strings.Join(failures, "; "))
}

// CompareVersions reports an update whenever the two tags differ. The
// direction is derived from PEP 440 or Debian ordering for display only.
func CompareVersions(current string, latest string) types.VersionComparison {
	if current == latest {
		return types.VersionComparison{Equal: true, Direction: types.DirectionNone}
	}
	return types.VersionComparison{
		UpdateAvailable: true,
		Direction:       versionDirection(current, latest),
	}
}

func versionDirection(current string, latest string) types.VersionDirection {
	a := trimTagPrefix(current)
	b := trimTagPrefix(latest)
	if cmp, ok := comparePep440(a, b); ok {
		return directionOf(cmp)
	}
	if cmp, ok := compareDeb(a, b); ok {
		return directionOf(cmp)
	}
	return types.DirectionUnknown
}

func comparePep440(a string, b string) (int, bool) {
	v1, err := pep440.Parse(a)
	if err != nil {
		return 0, false
	}
	v2, err := pep440.Parse(b)
	if err != nil {
		return 0, false
	}
	return v1.Compare(v2), true
}

func compareDeb(a string, b string) (int, bool) {
	v1, err := debversion.NewVersion(a)
	if err != nil {
		return 0, false
	}
	v2, err := debversion.NewVersion(b)
	if err != nil {
		return 0, false
	}
	return v1.Compare(v2), true
}

func directionOf(cmp int) types.VersionDirection {
	switch {
	case cmp < 0:
		return types.DirectionUpgrade
	case cmp > 0:
		return types.DirectionDowngrade
	default:
		return types.DirectionUnknown
	}
}

func trimTagPrefix(tag string) string {
	tag = strings.TrimSpace(tag)
	if len(tag) > 1 && (tag[0] == 'v' || tag[0] == 'V') && tag[1] >= '0' && tag[1] <= '9' {
		return tag[1:]
	}
	return tag
}
