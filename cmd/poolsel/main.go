package main

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/poolsel/internal"
	"github.com/charmbracelet/fang"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx := context.Background()

	if tryExternalCommand(ctx) {
		return
	}

	rootCmd := NewRootCmd(version, newApp())
	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}

func tryExternalCommand(ctx context.Context) bool {
	if len(os.Args) < 2 {
		return false
	}

	cmd := os.Args[1]
	if cmd == "" || cmd[0] == '-' {
		return false
	}

	if _, err := findExternal(cmd); err != nil {
		return false
	}

	if err := executeExternal(ctx, cmd, os.Args[2:], version); err != nil {
		fmt.Fprintf(os.Stderr, "poolsel %s: %v\n", cmd, err)
		os.Exit(1)
	}

	return true
}

// app carries the runtime every command shares. The root command points
// its resolver and logger at the parsed flags before any command runs.
type app struct {
	rt *internal.Runtime
}

func newApp() *app {
	return &app{rt: internal.NewRuntime()}
}
