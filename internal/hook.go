package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

const PostRoundHook = "post-round"

// HookScript is the template written by init for a hook that is not active
// until made executable.
func HookScript(hookType string) string {
	return fmt.Sprintf("#!/bin/sh\n# poolsel %s hook\n# $POOLSEL_ROUND, $POOLSEL_POOL, $POOLSEL_TAG and $POOLSEL_MANIFEST describe the round.\n", hookType)
}

func (w Workspace) HookPath(hookType string) string {
	return filepath.Join(w.Dir, "hooks", hookType)
}

// RunHook runs the workspace hook for hookType if it exists and is
// executable. It reports whether a hook ran.
func RunHook(ctx context.Context, ws Workspace, cfg *Config, hookType string, vars map[string]string, out io.Writer) (bool, error) {
	path := ws.HookPath(hookType)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat hook: %w", err)
	}
	if info.IsDir() || info.Mode().Perm()&0111 == 0 {
		return false, nil
	}

	env := os.Environ()
	env = append(env, sortedEnv(ws.EnvVars(cfg))...)
	env = append(env, sortedEnv(vars)...)

	cmd := exec.CommandContext(ctx, path)
	cmd.Dir = ws.Root
	cmd.Env = env
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return true, fmt.Errorf("%s hook: %w", hookType, err)
	}
	return true, nil
}

func sortedEnv(vars map[string]string) []string {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
