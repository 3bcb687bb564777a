package blitpaths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModuleForm(t *testing.T) {
	ep, err := Parse("backup.example.com:/archive/2026")
	require.NoError(t, err)
	assert.Equal(t, "backup.example.com", ep.Host)
	assert.Equal(t, DefaultControlPlanePort, ep.Port)
	assert.Equal(t, "archive", ep.Module)
	assert.Equal(t, "2026", ep.Path)
}

func TestParseModuleFormWithPort(t *testing.T) {
	ep, err := Parse("host:9000:/archive/2026/q1")
	require.NoError(t, err)
	assert.Equal(t, 9000, ep.Port)
	assert.Equal(t, "archive", ep.Module)
	assert.Equal(t, "2026/q1", ep.Path)
}

func TestParseRootRelativeForm(t *testing.T) {
	ep, err := Parse("host://srv/data")
	require.NoError(t, err)
	assert.Equal(t, "", ep.Module)
	assert.Equal(t, "srv/data", ep.Path)
}

func TestParseDiscoveryForm(t *testing.T) {
	ep, err := Parse("host:")
	require.NoError(t, err)
	assert.True(t, ep.Discovery)
	assert.Equal(t, DefaultControlPlanePort, ep.Port)
}

func TestParseRejectsBackslashes(t *testing.T) {
	_, err := Parse(`host:/module/sub\path`)
	assert.Error(t, err)
}

func TestParseRejectsPlainLocalPath(t *testing.T) {
	_, err := Parse("/home/user/data")
	assert.Error(t, err)
}

func TestAddrFormatsHostPort(t *testing.T) {
	ep, err := Parse("host:9000:/mod")
	require.NoError(t, err)
	assert.Equal(t, "host:9000", ep.Addr())
}
