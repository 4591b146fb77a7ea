package commands

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/teranos/jobpulse/am"
)

func TestSplitFields(t *testing.T) {
	assert.Nil(t, splitFields(""))
	assert.Equal(t, []string{"name", "owner"}, splitFields("name, owner"))
	assert.Equal(t, []string{"name"}, splitFields(" ,name,, "))
}

func TestIntervalText(t *testing.T) {
	assert.Equal(t, "once", intervalText(0))
	assert.Equal(t, "5s", intervalText(5*time.Second))
}

func newWatchTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "watch"}
	cmd.Flags().DurationVar(&watchInterval, "interval", 0, "")
	cmd.Flags().BoolVar(&watchActive, "active", false, "")
	cmd.Flags().BoolVar(&watchNoAdmit, "no-admit", false, "")
	return cmd
}

func TestWatchConfig_FromFile(t *testing.T) {
	cmd := newWatchTestCmd()
	cfg := &am.Config{
		API:   am.APIConfig{TimeoutSeconds: 7},
		Watch: am.WatchConfig{ReloadIntervalMs: 1500, Admission: true, MaxStartsPerMinute: 3},
	}

	wc := watchConfig(cmd, cfg)
	assert.Equal(t, 1500*time.Millisecond, wc.ReloadInterval)
	assert.True(t, wc.Admission)
	assert.False(t, wc.OnlyActive)
	assert.Equal(t, 3, wc.MaxStartsPerMinute)
	assert.Equal(t, 7*time.Second, wc.StartTimeout)
}

func TestWatchConfig_FlagsWin(t *testing.T) {
	cmd := newWatchTestCmd()
	t.Cleanup(func() { watchNoAdmit = false })
	assert.NoError(t, cmd.Flags().Parse([]string{"--interval", "2s", "--active", "--no-admit"}))

	cfg := &am.Config{Watch: am.WatchConfig{ReloadIntervalMs: 1500, Admission: true}}
	wc := watchConfig(cmd, cfg)
	assert.Equal(t, 2*time.Second, wc.ReloadInterval)
	assert.True(t, wc.OnlyActive)
	assert.False(t, wc.Admission)
}
