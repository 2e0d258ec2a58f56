package internal

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// PoolRepository is the full store surface the use cases work against.
type PoolRepository interface {
	PoolStore
	CreatePool(ctx context.Context, pool Name, dimension int) error
	CreatePoolWithItems(ctx context.Context, pool Name, dimension int, items []Item) error
	AddItems(ctx context.Context, pool Name, items []Item) error
	UpdateItems(ctx context.Context, pool Name, items []Item) error
	PoolInfo(ctx context.Context, pool Name) (*PoolInfo, error)
	ListPools(ctx context.Context) ([]PoolInfo, error)
	Item(ctx context.Context, pool Name, name Name) (*Item, error)
	Annotations(ctx context.Context, tag Name) ([]Annotation, error)
	CommitSelection(ctx context.Context, pool Name, items []Item, tag Name, round string) error
	Close() error
}

type RoundRepository interface {
	Record(ctx context.Context, round *Round) (*Commit, error)
	Log(ctx context.Context, limit int) ([]*Commit, error)
	Rounds(ctx context.Context) ([]*Round, error)
	Get(ctx context.Context, id string) (*Round, error)
}

// Runtime wires workspaces to their store, ledger and indexes. The CLI
// fills Resolver and Logger once flags are parsed.
type Runtime struct {
	Resolver *WorkspaceResolver
	Logger   logrus.FieldLogger
	Getenv   func(string) string

	OpenStore  func(ctx context.Context, path string) (PoolRepository, error)
	OpenLedger func(ws Workspace) (RoundRepository, error)
	OpenIndex  func(path string, dimension int) (VectorIndex, error)
}

func NewRuntime() *Runtime {
	return &Runtime{
		Resolver: NewWorkspaceResolver(""),
		Logger:   discardLogger(),
		Getenv:   os.Getenv,
		OpenStore: func(ctx context.Context, path string) (PoolRepository, error) {
			return OpenSQLiteStore(ctx, path)
		},
		OpenLedger: func(ws Workspace) (RoundRepository, error) {
			return OpenLedger(ws)
		},
		OpenIndex: func(path string, dimension int) (VectorIndex, error) {
			return NewAnnoyIndex(path, dimension)
		},
	}
}

// Config resolves the workspace and its effective configuration: the
// config file, then .env at the workspace root, then the process
// environment.
func (r *Runtime) Config() (Workspace, *Config, error) {
	ws, err := r.Resolver.Resolve()
	if err != nil {
		return Workspace{}, nil, err
	}

	cfg, err := LoadConfig(ws)
	if err != nil {
		return Workspace{}, nil, err
	}

	dotenv, err := godotenv.Read(ws.EnvPath())
	if err != nil && !os.IsNotExist(err) {
		return Workspace{}, nil, fmt.Errorf("read %s: %w", ws.EnvPath(), err)
	}

	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return Workspace{}, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return Workspace{}, nil, err
	}

	return ws, cfg, nil
}

// Session is an opened workspace. Close releases the store.
type Session struct {
	Workspace Workspace
	Config    *Config
	Store     PoolRepository
}

func (s *Session) Close() error {
	return s.Store.Close()
}

func (r *Runtime) Open(ctx context.Context) (*Session, error) {
	ws, cfg, err := r.Config()
	if err != nil {
		return nil, err
	}

	store, err := r.OpenStore(ctx, ws.StorePath(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	return &Session{Workspace: ws, Config: cfg, Store: store}, nil
}

func (r *Runtime) logger() logrus.FieldLogger {
	if r.Logger == nil {
		return discardLogger()
	}
	return r.Logger
}

func (r *Runtime) loadIndex(ctx context.Context, ws Workspace, pool Name, dimension int) (VectorIndex, error) {
	idx, err := r.OpenIndex(ws.VectorPath(pool), dimension)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}
