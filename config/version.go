package config

import "fmt"

// Build metadata, injected by the dev build with -ldflags -X.
var (
	AppVersion string
	GitCommit  string
	GitBranch  string
	BuildTime  string
	Arch       string
)

// Version renders the build metadata the way the CLI reports it.
func Version() string {
	v := AppVersion
	if v == "" {
		v = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", v, BuildTime, GitCommit)
}
