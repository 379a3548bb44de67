package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfoString(t *testing.T) {
	dev := Info{CommitHash: "dev", BuildTime: "unknown", Version: "dev"}
	assert.Equal(t, "buzzsnip dev (commit dev, built unknown)", dev.String())

	tagged := Info{CommitHash: "0123456789abcdef", BuildTime: "2024-01-15", Version: "1.0.0"}
	assert.Equal(t, "buzzsnip 1.0.0 (commit 0123456, built 2024-01-15)", tagged.String())
	assert.Equal(t, "0123456", tagged.Short())
}

func TestGetFillsRuntime(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
