package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/4thel00z/poolsel/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

const importedDirname = "imported"

func NewWatchCmd(rt *internal.Runtime, importUC *internal.ImportPoolUseCase) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import new item batches as they arrive",
		Long: `Watch the inbox directory (watch.inbox, default ./inbox) for *.jsonl files and
import them into a pool. Imported files are moved to inbox/imported.`,
		Args: cobra.NoArgs,
		RunE: makeWatchRunner(rt, importUC),
	}

	cmd.Flags().String("pool", "", "Pool to import into")
	cmd.Flags().Duration("debounce", 0, "Debounce window for batching changes (default: watch.debounce)")
	cmd.Flags().Bool("reindex", false, "Rebuild the pool's neighbor index after each batch")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func makeWatchRunner(rt *internal.Runtime, importUC *internal.ImportPoolUseCase) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		pool, _ := cmd.Flags().GetString("pool")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		reindex, _ := cmd.Flags().GetBool("reindex")

		if _, err := internal.NewName(pool); err != nil {
			return fmt.Errorf("pool: %w", err)
		}

		ws, cfg, err := rt.Config()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("debounce") {
			debounce = cfg.Watch.Debounce
		}

		inbox := ws.InboxPath(cfg)
		if err := os.MkdirAll(filepath.Join(inbox, importedDirname), 0755); err != nil {
			return fmt.Errorf("create inbox: %w", err)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		if err := watcher.Add(inbox); err != nil {
			return fmt.Errorf("watch %s: %w", inbox, err)
		}

		b := &batchImporter{cmd: cmd, uc: importUC, pool: pool, inbox: inbox, reindex: reindex}

		existing, err := filepath.Glob(filepath.Join(inbox, "*.jsonl"))
		if err != nil {
			return err
		}
		b.run(existing)

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for batches of %s...\n", inbox, pool)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := make(map[string]bool)

		for {
			select {
			case <-cmd.Context().Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if shouldIgnoreEvent(event) {
					continue
				}
				if len(pending) == 0 {
					timer.Reset(debounce)
				}
				pending[event.Name] = true
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				clear(pending)
				b.run(paths)
			}
		}
	}
}

// batchImporter imports inbox files one by one. A file that fails stays in
// the inbox and is retried on its next change.
type batchImporter struct {
	cmd     *cobra.Command
	uc      *internal.ImportPoolUseCase
	pool    string
	inbox   string
	reindex bool
}

func (b *batchImporter) run(paths []string) {
	slices.Sort(paths)
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		out, err := b.uc.Execute(b.cmd.Context(), internal.ImportInput{
			Pool: b.pool, Path: path, Refresh: true, Reindex: b.reindex,
		})
		if err != nil {
			fmt.Fprintf(b.cmd.ErrOrStderr(), "import %s: %v\n", filepath.Base(path), err)
			continue
		}

		done := filepath.Join(b.inbox, importedDirname, filepath.Base(path))
		if err := os.Rename(path, done); err != nil {
			fmt.Fprintf(b.cmd.ErrOrStderr(), "move %s: %v\n", filepath.Base(path), err)
		}

		fmt.Fprintf(b.cmd.OutOrStdout(), "%s: %d added, %d updated, %d ignored\n",
			filepath.Base(path), out.Added, out.Updated, out.Ignored)
	}
}

func shouldIgnoreEvent(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".jsonl") {
		return true
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return true
	}

	return false
}
