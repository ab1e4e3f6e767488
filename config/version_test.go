package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	defer func(v, c, b string) { AppVersion, GitCommit, BuildTime = v, c, b }(AppVersion, GitCommit, BuildTime)

	AppVersion, GitCommit, BuildTime = "", "", ""
	assert.Equal(t, "dev--", Version())

	AppVersion, GitCommit, BuildTime = "1.2.0", "a1b2c3", "2026-10-19T10:00:00Z"
	assert.Equal(t, "1.2.0-2026-10-19T10:00:00Z-a1b2c3", Version())
}
