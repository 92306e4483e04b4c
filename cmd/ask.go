package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"ryco/internal/surface"
	"ryco/internal/trigger"

	"github.com/spf13/cobra"
)

var (
	askDirect bool
	askCopy   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask once and stream the answer to stdout",
	Long: `Ask once and stream the answer to stdout.

By default the prompt goes through the relay started by 'ryco serve'.
With --direct the API key is read and the provider called in this process.`,
	Example: `  ryco ask "write a two line poem about rain"
  ryco ask --copy "summarize: ..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askDirect, "direct", false, "call the provider without the relay")
	askCmd.Flags().BoolVar(&askCopy, "copy", false, "copy the answer to the clipboard")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	a, err := bootstrap()
	if err != nil {
		return err
	}

	if askDirect {
		client, err := a.chatClient()
		if err != nil {
			return err
		}
		full, err := client.Chat(cmd.Context(), prompt, func(text string, final bool) {
			fmt.Fprint(out, text)
		})
		fmt.Fprintln(out)
		if err != nil {
			return err
		}
		if askCopy {
			return surface.SystemClipboard().WriteAll(full)
		}
		return nil
	}

	client, err := a.dial(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s := surface.New(surface.WithLogger(a.log))
	go s.Pump(ctx, client.Chunks())

	p := &streamPrinter{out: out, surface: s}
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		for {
			select {
			case <-s.Updates():
				p.flush()
			case <-ctx.Done():
				return
			}
		}
	}()

	_, askErr := s.Ask(ctx, client, "cli", nil, trigger.Match{Prompt: prompt})
	cancel()
	<-printerDone
	p.flush()
	fmt.Fprintln(out)

	if askErr != nil {
		return askErr
	}
	if askCopy {
		return s.Copy()
	}
	return nil
}

// streamPrinter writes the part of the response not printed yet. The
// response only grows, so the printed prefix stays valid.
type streamPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	surface *surface.Surface
	printed int
}

func (p *streamPrinter) flush() {
	v, ok := p.surface.View()
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(v.Text) > p.printed {
		fmt.Fprint(p.out, v.Text[p.printed:])
		p.printed = len(v.Text)
	}
}
