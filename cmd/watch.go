package cmd

import (
	"context"
	"fmt"
	"os"

	"ryco/config/storage"
	"ryco/internal/relay"
	"ryco/internal/surface"
	"ryco/internal/trigger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Answer @Ryco commands written into text files",
	Long: `Watch a directory of text files (.txt, .md, .markdown, .text).

When a saved file contains "@Ryco <prompt>//" the command is sent to the
relay and replaced in the file by the answer. The previous file content is
kept as a backup next to the file.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	if info, err := os.Stat(dir); err != nil {
		return err
	} else if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	detector := trigger.NewDetector(a.rt.Debounce.Duration, a.log)
	defer detector.Close()

	watcher := trigger.NewDirWatcher(dir, detector, storage.NewBackupManager(a.rt.Backups), a.log)
	watchErr := make(chan error, 1)
	go func() { watchErr <- watcher.Run(ctx) }()

	s := surface.New(surface.WithDismissHook(detector.Reset), surface.WithLogger(a.log))
	go s.Pump(ctx, client.Chunks())
	go logToasts(ctx, s, a.log)

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl+C to stop)\n", dir)
	return answerTriggers(ctx, detector, s, client, watchErr, a.log)
}

// answerTriggers asks for every fired trigger and inserts the answer. A
// failed ask is dismissed so the trigger can fire again on the next save.
func answerTriggers(ctx context.Context, detector *trigger.Detector, s *surface.Surface, r surface.Requester, watchErr <-chan error, log logrus.FieldLogger) error {
	for {
		select {
		case ev := <-detector.Events():
			flog := log.WithField("field", ev.Field.ID())
			flog.WithField("prompt", ev.Match.Prompt).Info("trigger fired")

			if _, err := s.Ask(ctx, r, "watch", ev.Field, ev.Match); err != nil {
				flog.WithError(err).Warn("ask failed")
				s.Cancel()
				continue
			}
			if err := s.Insert(); err != nil {
				flog.WithError(err).Warn("insert failed")
				s.Cancel()
			}
		case err := <-watchErr:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}

func logToasts(ctx context.Context, s *surface.Surface, log logrus.FieldLogger) {
	for {
		select {
		case t := <-s.Toasts():
			entry := log.WithField("toast", t.Title)
			if t.Kind == surface.ToastError {
				entry.Warn(t.Message)
			} else {
				entry.Info(t.Message)
			}
		case <-ctx.Done():
			return
		}
	}
}

var _ surface.Requester = (*relay.Client)(nil)
