package types

type VersionInfo struct {
	Current string
	Latest  string
	// Source names where Latest came from: remote, git, or configured.
	Source string
}

type VersionDirection string

const (
	DirectionNone      VersionDirection = "none"
	DirectionUpgrade   VersionDirection = "upgrade"
	DirectionDowngrade VersionDirection = "downgrade"
	DirectionUnknown   VersionDirection = "unknown"
)

// VersionComparison treats versions as opaque strings: any difference
// is an available update. Direction is informational only.
type VersionComparison struct {
	Equal           bool
	UpdateAvailable bool
	Direction       VersionDirection
}
