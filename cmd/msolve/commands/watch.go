package commands

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		storePath string
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <model-file>",
		Short: "Re-solve a model whenever its file changes",
		Long: `Watch a model file and re-run the solve on every change.

Edits are debounced, so a burst of writes from an editor triggers a
single re-solve. The command runs until interrupted.`,
		Example: `  # Re-solve on change
  msolve watch ./models/ar1.yaml

  # Persist every re-solve
  msolve watch --store ~/.msolve.db ./models/ar1.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			modelPath := args[0]

			tel, err := buildTelemetry("")
			if err != nil {
				return err
			}
			defer func() {
				_ = tel.Shutdown(context.Background())
			}()

			solve := func() {
				if err := runSolve(ctx, tel, modelPath, storePath); err != nil {
					log.Error().Err(err).Str("model", modelPath).Msg("Solve failed")
				}
			}

			// Initial solve before waiting for changes.
			solve()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			// Watch the directory: editors replace files on save, which
			// drops a watch registered on the file itself.
			if err := watcher.Add(filepath.Dir(modelPath)); err != nil {
				return err
			}

			log.Info().Str("model", modelPath).Msg("Watching for changes")

			var timer *time.Timer
			target, _ := filepath.Abs(modelPath)
			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					name, _ := filepath.Abs(event.Name)
					if name != target {
						continue
					}
					log.Debug().Str("op", event.Op.String()).Msg("Model file changed")
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, solve)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Error().Err(err).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "SQLite solution store path (empty disables persistence)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "delay between a change and the re-solve")

	return cmd
}
