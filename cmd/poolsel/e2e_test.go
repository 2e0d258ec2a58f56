package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/poolsel/internal"
)

const duplicateBatch = `{"name": "a", "uncertainty": 0.9, "embedding": [1, 0, 0]}
{"name": "b", "uncertainty": 0.9, "embedding": [1, 0, 0]}
{"name": "c", "uncertainty": 0.1, "embedding": [1, 0, 0]}
{"name": "d", "uncertainty": 0.5, "embedding": [0, 1, 0]}
{"name": "e", "uncertainty": 0.0, "embedding": [0, 0, 1]}
`

// runPoolsel executes the root command against the workspace at root with
// the process environment hidden.
func runPoolsel(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	a := newApp()
	a.rt.Getenv = func(string) string { return "" }

	cmd := NewRootCmd("test", a)
	cmd.SetArgs(append([]string{"--workspace", root}, args...))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, root string, args ...string) string {
	t.Helper()
	out, err := runPoolsel(t, root, args...)
	if err != nil {
		t.Fatalf("poolsel %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeBatch(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	return path
}

// setupWorkspace initializes a workspace holding the pool "scans".
func setupWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustRun(t, root, "init")
	mustRun(t, root, "import", "scans", writeBatch(t, filepath.Join(t.TempDir(), "batch.jsonl"), duplicateBatch))
	return root
}

func TestE2ESelectionRounds(t *testing.T) {
	root := setupWorkspace(t)

	// 1. Dry run picks the uncertain items that cover the pool
	out := mustRun(t, root, "select", "scans", "-c", "3", "-k", "2")
	for _, want := range []string{" a ", " d ", "Dry run"} {
		if !strings.Contains(out, want) {
			t.Errorf("dry run output missing %q:\n%s", want, out)
		}
	}

	// 2. Commit the round
	out = mustRun(t, root, "select", "scans", "-c", "3", "-k", "2", "--tag", "activeloop3", "--commit")
	if !strings.Contains(out, "Committed round") {
		t.Errorf("expected commit message, got:\n%s", out)
	}

	// 3. Picked items left the pool
	out = mustRun(t, root, "items", "scans")
	for _, name := range []string{"a", "d"} {
		if strings.Contains(out, "  "+name+"\n") {
			t.Errorf("%s should have left the pool:\n%s", name, out)
		}
	}
	if !strings.Contains(out, "  b\n") {
		t.Errorf("b should still be in the pool:\n%s", out)
	}

	// 4. Annotations record the round
	out = mustRun(t, root, "annotations", "activeloop3")
	if !strings.Contains(out, "scans/a") || !strings.Contains(out, "scans/d") {
		t.Errorf("expected annotations for a and d:\n%s", out)
	}

	// 5. Rounds are listed and can be shown by prefix
	out = mustRun(t, root, "--json", "rounds")
	var rounds []internal.Round
	if err := json.Unmarshal([]byte(out), &rounds); err != nil {
		t.Fatalf("parse rounds: %v\n%s", err, out)
	}
	if len(rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(rounds))
	}

	out = mustRun(t, root, "rounds", "show", rounds[0].ID[:8])
	if !strings.Contains(out, "tag: activeloop3") || !strings.Contains(out, "pool_size: 5") {
		t.Errorf("unexpected manifest:\n%s", out)
	}

	out = mustRun(t, root, "rounds", "log", "--oneline")
	if !strings.Contains(out, "round activeloop3: 2 of 5 from scans") {
		t.Errorf("unexpected log:\n%s", out)
	}

	// 6. The next round moves on to what is left
	out = mustRun(t, root, "--json", "select", "scans", "-c", "3", "-k", "1")
	var sel struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		Committed bool `json:"committed"`
	}
	if err := json.Unmarshal([]byte(out), &sel); err != nil {
		t.Fatalf("parse select: %v\n%s", err, out)
	}
	if len(sel.Items) != 1 || sel.Items[0].Name != "b" || sel.Committed {
		t.Errorf("unexpected selection: %+v", sel)
	}

	// 7. Status sums it up
	out = mustRun(t, root, "status")
	if !strings.Contains(out, "2 items marked for annotation in 1 rounds") {
		t.Errorf("unexpected status:\n%s", out)
	}
}

func TestE2ESelectCommitNeedsTag(t *testing.T) {
	root := setupWorkspace(t)

	_, err := runPoolsel(t, root, "select", "scans", "--commit")
	if !errors.Is(err, internal.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}

	out := mustRun(t, root, "rounds")
	if strings.TrimSpace(out) != "" {
		t.Errorf("no round should be recorded:\n%s", out)
	}
}

func TestE2ESelectErrors(t *testing.T) {
	root := setupWorkspace(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown pool", []string{"select", "ghost"}, internal.ErrNotFound},
		{"zero candidates", []string{"select", "scans", "-c", "0"}, internal.ErrInvalidArgument},
		{"negative subset", []string{"select", "scans", "-k", "-1"}, internal.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runPoolsel(t, root, tt.args...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestE2ERequiresWorkspace(t *testing.T) {
	_, err := runPoolsel(t, t.TempDir(), "pools")
	if !errors.Is(err, internal.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestE2EIndexAndNeighbors(t *testing.T) {
	root := setupWorkspace(t)

	out := mustRun(t, root, "index", "rebuild", "scans")
	if !strings.Contains(out, "Indexed 5 items of scans") {
		t.Errorf("unexpected rebuild output:\n%s", out)
	}

	out = mustRun(t, root, "--json", "neighbors", "scans", "a", "-n", "2")
	var res struct {
		Neighbors []struct {
			Name string `json:"name"`
		} `json:"neighbors"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("parse neighbors: %v\n%s", err, out)
	}
	if len(res.Neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(res.Neighbors))
	}
	for _, n := range res.Neighbors {
		if n.Name != "b" && n.Name != "c" {
			t.Errorf("unexpected neighbor %q", n.Name)
		}
	}

	out = mustRun(t, root, "status")
	if !strings.Contains(out, "indexed") {
		t.Errorf("status should show the index:\n%s", out)
	}
}

func TestE2EIndexSingleItemPool(t *testing.T) {
	root := t.TempDir()
	mustRun(t, root, "init")

	batch := writeBatch(t, filepath.Join(t.TempDir(), "lone.jsonl"), `{"name": "a", "uncertainty": 0.9, "embedding": [1, 0, 0]}`+"\n")
	out := mustRun(t, root, "import", "lone", batch, "--reindex")
	if strings.Contains(out, "Rebuilt index") {
		t.Errorf("a single item should not be indexed:\n%s", out)
	}

	out = mustRun(t, root, "index", "rebuild", "lone")
	if !strings.Contains(out, "Pool lone has 1 items, too few for an index") {
		t.Errorf("unexpected rebuild output:\n%s", out)
	}

	out = mustRun(t, root, "neighbors", "lone", "a")
	if out != "" {
		t.Errorf("expected no neighbors, got:\n%s", out)
	}
}

func TestE2ERemove(t *testing.T) {
	root := setupWorkspace(t)

	out := mustRun(t, root, "remove", "scans", "a", "e")
	if !strings.Contains(out, "Removed 2 items") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := runPoolsel(t, root, "rm", "scans", "b", "ghost"); !errors.Is(err, internal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	out = mustRun(t, root, "--json", "pools")
	var pools []map[string]any
	if err := json.Unmarshal([]byte(out), &pools); err != nil {
		t.Fatalf("parse pools: %v", err)
	}
	if len(pools) != 1 || pools[0]["size"] != float64(3) {
		t.Errorf("unexpected pools: %v", pools)
	}
}
