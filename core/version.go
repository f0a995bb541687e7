package core

import "strings"

// Build metadata, injected with ldflags:
//
//	go build -ldflags "-X go_waifu2x/core.Version=$(git describe --tags --always) \
//	  -X go_waifu2x/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ) \
//	  -X go_waifu2x/core.GitCommit=$(git rev-parse --short HEAD)" .
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// ldflagsPackage is the import path the -X flags target.
const ldflagsPackage = "go_waifu2x/core"

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns "<version> (built <time>, commit <hash>)".
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// BuildLdflags returns the -X flags for the non-empty values, in
// Version, BuildTime, GitCommit order.
func BuildLdflags(version, buildTime, gitCommit string) string {
	var flags []string
	for _, kv := range [][2]string{
		{"Version", version},
		{"BuildTime", buildTime},
		{"GitCommit", gitCommit},
	} {
		if kv[1] != "" {
			flags = append(flags, "-X "+ldflagsPackage+"."+kv[0]+"="+kv[1])
		}
	}
	return strings.Join(flags, " ")
}
