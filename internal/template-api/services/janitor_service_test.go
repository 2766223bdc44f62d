package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDir(t *testing.T, root, name string, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "logs.txt"), []byte("INFO done"), 0o644))
	require.NoError(t, os.Chtimes(path, modTime, modTime))
	return path
}

func TestJanitor_PruneOnce(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(now)

	old := makeDir(t, root, "output_old", now.Add(-48*time.Hour))
	fresh := makeDir(t, root, "output_fresh", now.Add(-time.Hour))
	unrelated := makeDir(t, root, "aws", now.Add(-72*time.Hour))

	j, err := NewJanitorService(root, "output_", time.Hour, 24*time.Hour, fc)
	require.NoError(t, err)

	removed, err := j.PruneOnce()
	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, unrelated)
}

func TestJanitor_MissingRoot(t *testing.T) {
	j, err := NewJanitorService(filepath.Join(t.TempDir(), "absent"), "output_", time.Hour, time.Hour, nil)
	require.NoError(t, err)

	removed, err := j.PruneOnce()
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

func TestJanitor_StartSchedulesJob(t *testing.T) {
	j, err := NewJanitorService(t.TempDir(), "output_", time.Hour, time.Hour, nil)
	require.NoError(t, err)

	require.NoError(t, j.Start())
	defer j.Stop()

	jobs := j.Scheduler.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "prune_task_outputs", jobs[0].Name())
	assert.Contains(t, jobs[0].Tags(), janitorTag)
}
