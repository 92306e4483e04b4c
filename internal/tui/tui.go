package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"ryco/internal/relay"
	"ryco/internal/surface"
	"ryco/internal/trigger"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// composerID names the composer field in the detector
const composerID = "composer"

// Run starts the TUI against a connected relay client
func Run(ctx context.Context, client *relay.Client, debounce time.Duration, log logrus.FieldLogger) error {
	// Check if we're running in a terminal
	if !isTerminal() {
		return fmt.Errorf("ryco TUI requires a terminal. Use 'ryco ask' for non-interactive mode")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	detector := trigger.NewDetector(debounce, log)
	defer detector.Close()

	field := trigger.NewTextField(composerID, "")
	detector.Observe(field)

	s := surface.New(
		surface.WithDismissHook(detector.Reset),
		surface.WithLogger(log),
	)
	go s.Pump(ctx, client.Chunks())

	m := NewModel(ctx, client, detector, s, field, composerID)

	opts := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	}

	p := tea.NewProgram(m, opts...)
	client.OnNotice(func(msg relay.Message) {
		if msg.Type == relay.TypeSettingsChanged {
			p.Send(SettingsChangedMsg{Theme: msg.Theme})
		}
	})
	defer client.OnNotice(nil)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// isTerminal checks if stdin is a terminal
func isTerminal() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
