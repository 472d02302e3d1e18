package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunMissingProgramFileIsLoadError(t *testing.T) {
	code := run([]string{"-program", filepath.Join(t.TempDir(), "nope.moco")})
	require.Equal(t, exitLoadError, code)
}

func TestRunBadWidthIsConfigError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.moco")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	code := run([]string{"-program", path, "-width", "8"})
	require.Equal(t, exitConfigError, code)
}

func TestRunEmptyProgramHalts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.moco")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	code := run([]string{"-program", path, "-heap-size", "64B"})
	require.Equal(t, exitOK, code)
}
