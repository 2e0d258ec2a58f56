package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBranch = "main"
	DefaultAuthor = "poolsel"
	DefaultEmail  = "poolsel@local"

	ledgerInitFile = ".ledger-init"
)

// RoundItem is one selected item as recorded in a round manifest.
type RoundItem struct {
	Name        Name    `yaml:"name" json:"name"`
	Uncertainty float64 `yaml:"uncertainty" json:"uncertainty"`
	Gain        float64 `yaml:"gain" json:"gain"`
}

// Round is the manifest of one committed selection round.
type Round struct {
	ID         string      `yaml:"id" json:"id"`
	Pool       Name        `yaml:"pool" json:"pool"`
	Tag        Name        `yaml:"tag" json:"tag"`
	Candidates int         `yaml:"candidates" json:"candidates"`
	Select     int         `yaml:"select" json:"select"`
	PoolSize   int         `yaml:"pool_size" json:"pool_size"`
	Coverage   float64     `yaml:"coverage" json:"coverage"`
	Items      []RoundItem `yaml:"items" json:"items"`
	CreatedAt  time.Time   `yaml:"created_at" json:"created_at"`
}

// Filename is the manifest's path inside the ledger worktree.
func (r *Round) Filename() string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s.yaml", strings.ReplaceAll(r.Tag.String(), "/", "_"), id)
}

type Commit struct {
	Hash      string
	Message   string
	Author    string
	Timestamp time.Time
}

// RoundLedger is a git history of round manifests. Git objects live in
// .poolsel/ledger and the manifests are checked out under .poolsel/rounds.
type RoundLedger struct {
	repo     *git.Repository
	worktree *git.Worktree
	rootPath string
}

func InitLedger(ws Workspace) error {
	if err := os.MkdirAll(ws.LedgerPath(), 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	if err := os.MkdirAll(ws.RoundsPath(), 0755); err != nil {
		return fmt.Errorf("create rounds directory: %w", err)
	}

	storage := filesystem.NewStorage(osfs.New(ws.LedgerPath()), cache.NewObjectLRUDefault())
	repo, err := git.Init(storage, osfs.New(ws.RoundsPath()))
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("get config: %w", err)
	}
	cfg.Init.DefaultBranch = DefaultBranch
	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("set config: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	if err := os.WriteFile(filepath.Join(ws.RoundsPath(), ledgerInitFile), []byte("poolsel round ledger\n"), 0644); err != nil {
		return fmt.Errorf("write init file: %w", err)
	}
	if _, err := worktree.Add(ledgerInitFile); err != nil {
		return fmt.Errorf("stage init file: %w", err)
	}

	if _, err := worktree.Commit("init: initialize round ledger", &git.CommitOptions{
		Author: signature(time.Now()),
	}); err != nil {
		return fmt.Errorf("initial commit: %w", err)
	}

	return nil
}

func OpenLedger(ws Workspace) (*RoundLedger, error) {
	if _, err := os.Stat(ws.LedgerPath()); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no ledger at %s", ErrNotInitialized, ws.LedgerPath())
	}

	storage := filesystem.NewStorage(osfs.New(ws.LedgerPath()), cache.NewObjectLRUDefault())
	repo, err := git.Open(storage, osfs.New(ws.RoundsPath()))
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("get worktree: %w", err)
	}

	return &RoundLedger{repo: repo, worktree: worktree, rootPath: ws.RoundsPath()}, nil
}

// Record writes the round manifest and commits it.
func (l *RoundLedger) Record(ctx context.Context, round *Round) (*Commit, error) {
	if round.ID == "" {
		return nil, fmt.Errorf("%w: round has no id", ErrInvalidArgument)
	}

	data, err := yaml.Marshal(round)
	if err != nil {
		return nil, fmt.Errorf("marshal round: %w", err)
	}

	name := round.Filename()
	if err := os.WriteFile(filepath.Join(l.rootPath, name), data, 0644); err != nil {
		return nil, fmt.Errorf("write round: %w", err)
	}
	if _, err := l.worktree.Add(name); err != nil {
		return nil, fmt.Errorf("stage round: %w", err)
	}

	message := fmt.Sprintf("round %s: %d of %d from %s", round.Tag, len(round.Items), round.PoolSize, round.Pool)
	hash, err := l.worktree.Commit(message, &git.CommitOptions{
		Author: signature(round.CreatedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("commit round: %w", err)
	}

	c, err := l.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("get commit: %w", err)
	}
	return toCommit(c), nil
}

// Log returns ledger commits newest first; limit <= 0 means all.
func (l *RoundLedger) Log(ctx context.Context, limit int) ([]*Commit, error) {
	iter, err := l.repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("get log: %w", err)
	}
	defer iter.Close()

	var commits []*Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(commits) >= limit {
			return io.EOF
		}
		commits = append(commits, toCommit(c))
		return nil
	})
	if err != nil && err != io.EOF {
		return nil, err
	}

	return commits, nil
}

// Rounds reads every manifest in the worktree, oldest first.
func (l *RoundLedger) Rounds(ctx context.Context) ([]*Round, error) {
	entries, err := os.ReadDir(l.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read rounds: %w", err)
	}

	var rounds []*Round
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.rootPath, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var r Round
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		rounds = append(rounds, &r)
	}

	slices.SortStableFunc(rounds, func(a, b *Round) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return rounds, nil
}

// Get finds a round by id or unique id prefix.
func (l *RoundLedger) Get(ctx context.Context, id string) (*Round, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty round id", ErrInvalidArgument)
	}

	rounds, err := l.Rounds(ctx)
	if err != nil {
		return nil, err
	}

	var found *Round
	for _, r := range rounds {
		if !strings.HasPrefix(r.ID, id) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: round id %q is ambiguous", ErrInvalidArgument, id)
		}
		found = r
	}
	if found == nil {
		return nil, fmt.Errorf("%w: round %q", ErrNotFound, id)
	}
	return found, nil
}

func signature(when time.Time) *object.Signature {
	return &object.Signature{
		Name:  DefaultAuthor,
		Email: DefaultEmail,
		When:  when,
	}
}

func toCommit(c *object.Commit) *Commit {
	return &Commit{
		Hash:      c.Hash.String(),
		Message:   strings.TrimSpace(c.Message),
		Author:    c.Author.Name,
		Timestamp: c.Author.When,
	}
}
