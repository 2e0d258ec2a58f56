package internal

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

const WorkspaceDirname = ".poolsel"

// Workspace is a directory holding a .poolsel state directory.
type Workspace struct {
	Root string // directory containing .poolsel
	Dir  string // the .poolsel directory itself
}

func NewWorkspace(root string) Workspace {
	return Workspace{Root: root, Dir: filepath.Join(root, WorkspaceDirname)}
}

func (w Workspace) ConfigPath() string {
	return filepath.Join(w.Dir, "config.yaml")
}

// StorePath resolves the store location from config; relative paths are
// taken from the .poolsel directory.
func (w Workspace) StorePath(cfg *Config) string {
	p := DefaultStorePath
	if cfg != nil && cfg.Store.Path != "" {
		p = cfg.Store.Path
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.Dir, p)
}

// VectorPath is the pool's index directory. Nested pool names map to
// sibling directories, so no pool's index lives inside another's.
func (w Workspace) VectorPath(pool Name) string {
	return filepath.Join(w.Dir, "vectors", url.PathEscape(pool.String()))
}

func (w Workspace) LedgerPath() string {
	return filepath.Join(w.Dir, "ledger")
}

func (w Workspace) RoundsPath() string {
	return filepath.Join(w.Dir, "rounds")
}

func (w Workspace) InboxPath(cfg *Config) string {
	p := DefaultInbox
	if cfg != nil && cfg.Watch.Inbox != "" {
		p = cfg.Watch.Inbox
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(w.Root, p)
}

func (w Workspace) EnvPath() string {
	return filepath.Join(w.Root, ".env")
}

func (w Workspace) Exists() bool {
	info, err := os.Stat(w.Dir)
	return err == nil && info.IsDir()
}

type WorkspaceResolver struct {
	explicit string
}

// NewWorkspaceResolver returns a resolver pinned to explicit when it is
// non-empty, otherwise one that searches upward from the working directory.
func NewWorkspaceResolver(explicit string) *WorkspaceResolver {
	return &WorkspaceResolver{explicit: explicit}
}

func (r *WorkspaceResolver) Resolve() (Workspace, error) {
	if r.explicit != "" {
		abs, err := filepath.Abs(r.explicit)
		if err != nil {
			return Workspace{}, fmt.Errorf("resolve workspace: %w", err)
		}
		ws := NewWorkspace(abs)
		if !ws.Exists() {
			return Workspace{}, fmt.Errorf("%w: %s", ErrNotInitialized, abs)
		}
		return ws, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace: %w", err)
	}
	if ws, ok := findWorkspace(cwd); ok {
		return ws, nil
	}
	return Workspace{}, fmt.Errorf("%w: no %s directory above %s", ErrNotInitialized, WorkspaceDirname, cwd)
}

// Target is where init creates a workspace: the explicit path, or the
// working directory.
func (r *WorkspaceResolver) Target() (Workspace, error) {
	root := r.explicit
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return Workspace{}, err
		}
		root = cwd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Workspace{}, err
	}
	return NewWorkspace(abs), nil
}

func findWorkspace(dir string) (Workspace, bool) {
	for {
		ws := NewWorkspace(dir)
		if ws.Exists() {
			return ws, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Workspace{}, false
		}
		dir = parent
	}
}

// EnvVars describes the workspace to hook scripts and subprocesses.
func (w Workspace) EnvVars(cfg *Config) map[string]string {
	return map[string]string{
		"POOLSEL_ROOT":   w.Root,
		"POOLSEL_DIR":    w.Dir,
		"POOLSEL_CONFIG": w.ConfigPath(),
		"POOLSEL_STORE":  w.StorePath(cfg),
	}
}
