package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/4thel00z/poolsel/internal"
)

func TestFindExternal(t *testing.T) {
	tmp := t.TempDir()
	script := filepath.Join(tmp, "poolsel-report")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho ok"), 0755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", tmp+string(os.PathListSeparator)+os.Getenv("PATH"))

	path, err := findExternal("report")
	if err != nil {
		t.Fatalf("expected to find poolsel-report, got error: %v", err)
	}
	if path != script {
		t.Errorf("expected %s, got %s", script, path)
	}
}

func TestFindExternalNotFound(t *testing.T) {
	if _, err := findExternal("nonexistent-command-12345"); err == nil {
		t.Fatal("expected error for nonexistent command")
	}
}

func TestListExternalCommands(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits are not meaningful on windows")
	}
	tmp := t.TempDir()

	for _, s := range []string{"poolsel-foo", "poolsel-bar", "other-script"} {
		if err := os.WriteFile(filepath.Join(tmp, s), []byte("#!/bin/sh"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmp, "poolsel-noexec"), []byte("#!/bin/sh"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(tmp, "poolsel-dir"), 0755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PATH", tmp)

	cmds := listExternalCommands()
	for _, want := range []string{"foo", "bar"} {
		if !slices.Contains(cmds, want) {
			t.Errorf("expected %q in %v", want, cmds)
		}
	}
	for _, unwanted := range []string{"other-script", "noexec", "dir"} {
		if slices.Contains(cmds, unwanted) {
			t.Errorf("did not expect %q in %v", unwanted, cmds)
		}
	}
}

func TestBuildExternalEnv(t *testing.T) {
	root := t.TempDir()
	rt := internal.NewRuntime()
	rt.Resolver = internal.NewWorkspaceResolver(root)
	if _, err := internal.NewInitUseCase(rt).Execute(context.Background(), internal.InitInput{}); err != nil {
		t.Fatalf("init: %v", err)
	}

	env := buildExternalEnv("1.2.3", internal.NewWorkspaceResolver(root))
	if !slices.Contains(env, "POOLSEL_VERSION=1.2.3") {
		t.Error("missing POOLSEL_VERSION")
	}

	ws := internal.NewWorkspace(root)
	if !slices.Contains(env, "POOLSEL_ROOT="+ws.Root) {
		t.Error("missing POOLSEL_ROOT")
	}
	if !slices.Contains(env, "POOLSEL_STORE="+ws.StorePath(nil)) {
		t.Error("missing POOLSEL_STORE")
	}
}

func TestBuildExternalEnvOutsideWorkspace(t *testing.T) {
	dir := t.TempDir()
	env := buildExternalEnv("dev", internal.NewWorkspaceResolver(dir))
	for _, kv := range env {
		if strings.HasSuffix(kv, "="+dir) {
			t.Errorf("unexpected %s outside a workspace", kv)
		}
	}
}
