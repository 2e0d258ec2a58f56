package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/4thel00z/poolsel/internal"
)

const externalPrefix = "poolsel-"

func findExternal(name string) (string, error) {
	binary := externalPrefix + name
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("unknown command %q: %s not found in PATH", name, binary)
	}
	return path, nil
}

func listExternalCommands() []string {
	var commands []string
	seen := make(map[string]bool)

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := externalName(dir, entry)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			commands = append(commands, name)
		}
	}
	return commands
}

func externalName(dir string, entry os.DirEntry) string {
	name := entry.Name()
	if entry.IsDir() || !strings.HasPrefix(name, externalPrefix) {
		return ""
	}

	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil || info.Mode()&0111 == 0 {
		return ""
	}

	return strings.TrimPrefix(name, externalPrefix)
}

func executeExternal(ctx context.Context, name string, args []string, version string) error {
	binaryPath, err := findExternal(name)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Env = buildExternalEnv(version, internal.NewWorkspaceResolver(""))
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// buildExternalEnv exposes the binary, its version and, when one is found,
// the enclosing workspace to plugins.
func buildExternalEnv(version string, resolver *internal.WorkspaceResolver) []string {
	bin, _ := os.Executable()

	env := os.Environ()
	env = append(env,
		"POOLSEL_VERSION="+version,
		"POOLSEL_BIN="+bin,
	)

	ws, err := resolver.Resolve()
	if err != nil {
		return env
	}
	cfg, _ := internal.LoadConfig(ws)
	for k, v := range ws.EnvVars(cfg) {
		env = append(env, k+"="+v)
	}
	return env
}
