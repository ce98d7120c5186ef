package app

import (
	"testing"

	"github.com/atvirokodosprendimai/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWarnUnauthenticatedAdminWithoutToken(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	warned := warnUnauthenticatedAdmin(config.Config{HTTPAddr: ":8080"}, zap.New(core))

	assert.True(t, warned)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "ADMIN_TOKEN")
	assert.Equal(t, ":8080", entries[0].ContextMap()["http_addr"])
}

func TestWarnUnauthenticatedAdminWithToken(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	warned := warnUnauthenticatedAdmin(config.Config{AdminToken: "s3cret"}, zap.New(core))

	assert.False(t, warned)
	assert.Zero(t, logs.Len())
}
