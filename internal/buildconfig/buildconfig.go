package buildconfig

import "runtime"

// Set with -ldflags "-X github.com/Voork1144/just-memory/internal/buildconfig.version=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is what `justmemory version` and GET /health report.
func VersionInfo() map[string]string {
	return map[string]string{
		"version":    version,
		"commit":     commit,
		"build_date": buildDate,
		"go":         runtime.Version(),
	}
}
