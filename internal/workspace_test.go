package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspacePaths(t *testing.T) {
	ws := NewWorkspace("/data/scans")

	assert.Equal(t, "/data/scans/.poolsel", ws.Dir)
	assert.Equal(t, "/data/scans/.poolsel/config.yaml", ws.ConfigPath())
	assert.Equal(t, "/data/scans/.poolsel/vectors/site%2Fa", ws.VectorPath("site/a"))
	assert.NotEqual(t, ws.VectorPath("site_a"), ws.VectorPath("site/a"))
	assert.Equal(t, filepath.Dir(ws.VectorPath("site")), filepath.Dir(ws.VectorPath("site/a")))
	assert.Equal(t, "/data/scans/.poolsel/ledger", ws.LedgerPath())
	assert.Equal(t, "/data/scans/.poolsel/rounds", ws.RoundsPath())
	assert.Equal(t, "/data/scans/.env", ws.EnvPath())
}

func TestWorkspaceStorePath(t *testing.T) {
	ws := NewWorkspace("/data/scans")

	assert.Equal(t, "/data/scans/.poolsel/pool.db", ws.StorePath(nil))

	cfg := DefaultConfig()
	cfg.Store.Path = "other.db"
	assert.Equal(t, "/data/scans/.poolsel/other.db", ws.StorePath(cfg))

	cfg.Store.Path = "/var/lib/poolsel.db"
	assert.Equal(t, "/var/lib/poolsel.db", ws.StorePath(cfg))
}

func TestWorkspaceInboxPath(t *testing.T) {
	ws := NewWorkspace("/data/scans")
	assert.Equal(t, "/data/scans/inbox", ws.InboxPath(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.Watch.Inbox = "/mnt/drop"
	assert.Equal(t, "/mnt/drop", ws.InboxPath(cfg))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
}

func TestWorkspaceResolverWalksUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, WorkspaceDirname), 0755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	chdir(t, nested)

	ws, err := NewWorkspaceResolver("").Resolve()
	require.NoError(t, err)

	// Resolve symlinks for comparison (macOS /var -> /private/var)
	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(ws.Root)
	assert.Equal(t, want, got)
}

func TestWorkspaceResolverNotInitialized(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := NewWorkspaceResolver("").Resolve()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = NewWorkspaceResolver(t.TempDir()).Resolve()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestWorkspaceResolverExplicit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, WorkspaceDirname), 0755))

	ws, err := NewWorkspaceResolver(root).Resolve()
	require.NoError(t, err)
	assert.Equal(t, root, ws.Root)

	target, err := NewWorkspaceResolver(root).Target()
	require.NoError(t, err)
	assert.Equal(t, ws, target)
}

func TestWorkspaceEnvVars(t *testing.T) {
	ws := NewWorkspace("/data/scans")
	env := ws.EnvVars(DefaultConfig())

	assert.Equal(t, "/data/scans", env["POOLSEL_ROOT"])
	assert.Equal(t, "/data/scans/.poolsel/config.yaml", env["POOLSEL_CONFIG"])
	assert.Equal(t, "/data/scans/.poolsel/pool.db", env["POOLSEL_STORE"])
}
