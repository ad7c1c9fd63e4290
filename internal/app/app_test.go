package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shareqr/internal/config"
)

func TestBodyLimit(t *testing.T) {
	assert.Equal(t, "52428800", bodyLimit(&config.Config{MaxSize: 50}))

	// Fractional limits keep their precision instead of truncating to 0M.
	assert.Equal(t, "524288", bodyLimit(&config.Config{MaxSize: 0.5}))
}
