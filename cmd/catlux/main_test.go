package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"catlux/pkg/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestDownloadFlagsOnlyChanged(t *testing.T) {
	cmd := downloadCmd
	require.NoError(t, cmd.ParseFlags([]string{"--select", "new", "--flat", "--pages", "3"}))

	flags := downloadFlags(cmd)
	assert.Equal(t, "new", flags["select"])
	assert.Equal(t, true, flags["flat"])
	assert.Equal(t, 3, flags["pages"])
	assert.NotContains(t, flags, "save-path")
	assert.NotContains(t, flags, "monthly-limit")
}

func TestIsKnownCommand(t *testing.T) {
	assert.True(t, isKnownCommand("download"))
	assert.True(t, isKnownCommand("status"))
	assert.False(t, isKnownCommand("https://www.catlux.de/probearbeiten/klasse-5/mathe"))
}

func TestStatusAndReset(t *testing.T) {
	t.Setenv("CATLUX_LOG_LEVEL", "disabled")
	tracker := filepath.Join(t.TempDir(), "download_tracker.json")

	ledger, err := quota.Open(tracker, 5)
	require.NoError(t, err)
	require.NoError(t, ledger.RecordDownload("Mathe_5_003"))
	require.NoError(t, ledger.RecordDownload("Mathe_5_003_solution"))

	out, err := execute(t, "", "status", "--tracker-file", tracker, "--monthly-limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "2/5")

	out, err = execute(t, "n\n", "reset", "--tracker-file", tracker)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing changed")
	require.NoError(t, ledger.Reload())
	assert.Equal(t, 2, ledger.TotalAllTime())

	_, err = execute(t, "", "reset", "--tracker-file", tracker, "--yes")
	require.NoError(t, err)
	require.NoError(t, ledger.Reload())
	assert.Zero(t, ledger.TotalAllTime())
}
