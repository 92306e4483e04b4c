package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ryco/internal/providers"
	"ryco/internal/relay"
	"ryco/internal/surface"
	"ryco/internal/trigger"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
)

// fakeRequester answers relay requests from a script
type fakeRequester struct {
	mu       sync.Mutex
	sent     []relay.Message
	response string
	err      error
}

func (f *fakeRequester) Request(ctx context.Context, msg relay.Message) (relay.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()

	if f.err != nil {
		return relay.Message{}, f.err
	}

	ok := true
	reply := relay.Message{Type: relay.TypeReply, Success: &ok}
	switch msg.Type {
	case relay.TypeChat:
		reply.Response = f.response
	case relay.TypeGetSettings:
		reply.Settings = json.RawMessage(`{"activeProvider":"gemini","selectedModels":{"openai":"gpt-4o"},"userDetails":{"name":"Ada"},"hasKey":{"gemini":true},"theme":"light"}`)
		reply.Providers = providers.Default().List()
	}
	return reply, nil
}

func (f *fakeRequester) last() relay.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return relay.Message{}
	}
	return f.sent[len(f.sent)-1]
}

type testEnv struct {
	model     Model
	requester *fakeRequester
	detector  *trigger.Detector
	surface   *surface.Surface
	field     *trigger.TextField
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := &fakeRequester{response: "a quiet pond"}
	d := trigger.NewDetector(10*time.Millisecond, log)
	t.Cleanup(d.Close)

	field := trigger.NewTextField(composerID, "")
	d.Observe(field)
	s := surface.New(surface.WithDismissHook(d.Reset), surface.WithLogger(log))

	return &testEnv{
		model:     NewModel(context.Background(), r, d, s, field, composerID),
		requester: r,
		detector:  d,
		surface:   s,
		field:     field,
	}
}

func (e *testEnv) update(msg tea.Msg) tea.Cmd {
	next, cmd := e.model.Update(msg)
	e.model = next.(Model)
	return cmd
}

func (e *testEnv) loadSettings(t *testing.T) {
	t.Helper()
	e.update(loadSettings(context.Background(), e.requester)())
	if len(e.model.providers) == 0 {
		t.Fatalf("providers not loaded: %s", e.model.errorMsg)
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func waitTrigger(t *testing.T, d *trigger.Detector) trigger.Event {
	t.Helper()
	select {
	case ev := <-d.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not fire")
		return trigger.Event{}
	}
}

func TestCaretOffset(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		row, col int
		want     int
	}{
		{"empty", "", 0, 0, 0},
		{"end of single line", "hello", 0, 5, 5},
		{"middle of single line", "hello", 0, 2, 2},
		{"second line", "ab\ncd", 1, 1, 4},
		{"column past line end", "ab\ncd", 0, 9, 2},
		{"multibyte runes", "héllo", 0, 2, 3},
		{"row past end", "ab", 3, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := caretOffset(tt.value, tt.row, tt.col); got != tt.want {
				t.Errorf("caretOffset(%q, %d, %d) = %d, want %d", tt.value, tt.row, tt.col, got, tt.want)
			}
		})
	}
}

func TestTriggerAskInsertFlow(t *testing.T) {
	env := newTestEnv(t)

	env.update(runes("@Ryco write a haiku//"))
	text, _ := env.field.Text()
	if text != "@Ryco write a haiku//" {
		t.Fatalf("field text = %q", text)
	}
	if env.field.Caret() != len(text) {
		t.Errorf("caret = %d, want %d", env.field.Caret(), len(text))
	}

	ev := waitTrigger(t, env.detector)
	if ev.Match.Prompt != "write a haiku" {
		t.Fatalf("prompt = %q", ev.Match.Prompt)
	}
	if env.detector.State(composerID) != trigger.Fired {
		t.Fatalf("detector state = %v, want fired", env.detector.State(composerID))
	}

	if cmd := env.update(TriggerMsg{Event: ev}); cmd == nil {
		t.Fatal("expected commands after trigger")
	}
	if env.model.viewState != ViewResponse {
		t.Fatalf("viewState = %v, want ViewResponse", env.model.viewState)
	}

	done := ask(context.Background(), env.surface, env.requester, composerID, ev)()
	env.update(done)

	sent := env.requester.last()
	if sent.Type != relay.TypeChat || sent.Prompt != "write a haiku" || sent.CorrelationID == "" {
		t.Errorf("unexpected chat request: %+v", sent)
	}
	if !strings.Contains(env.model.View(), "a quiet pond") {
		t.Errorf("response not rendered:\n%s", env.model.View())
	}

	env.update(tea.KeyMsg{Type: tea.KeyEnter})

	if env.model.viewState != ViewCompose {
		t.Errorf("viewState = %v, want ViewCompose", env.model.viewState)
	}
	if got, _ := env.field.Text(); got != "a quiet pond" {
		t.Errorf("field text = %q", got)
	}
	if env.model.input.Value() != "a quiet pond" {
		t.Errorf("composer value = %q", env.model.input.Value())
	}
	if env.detector.State(composerID) != trigger.Idle {
		t.Errorf("detector not reset after insert")
	}
	if _, open := env.surface.View(); open {
		t.Error("surface still open after insert")
	}
}

func TestCancelDiscardsResponse(t *testing.T) {
	env := newTestEnv(t)
	env.field.Set("@Ryco hello there//", 19)
	m, _ := trigger.Detect("@Ryco hello there//", 19)
	ev := trigger.Event{Field: env.field, Match: m}

	env.update(TriggerMsg{Event: ev})
	id := env.surface.Open(composerID, env.field, m)
	env.surface.Apply(relay.StreamChunk(id, "partial", false))

	env.update(tea.KeyMsg{Type: tea.KeyEsc})

	if env.model.viewState != ViewCompose {
		t.Errorf("viewState = %v, want ViewCompose", env.model.viewState)
	}
	if _, open := env.surface.View(); open {
		t.Error("surface still open after cancel")
	}
	if got, _ := env.field.Text(); got != "@Ryco hello there//" {
		t.Errorf("cancel changed the field: %q", got)
	}

	select {
	case toast := <-env.surface.Toasts():
		if toast.Title != "Cancelled" {
			t.Errorf("toast = %+v", toast)
		}
	default:
		t.Error("expected a toast")
	}
}

func TestToastShownAndExpired(t *testing.T) {
	env := newTestEnv(t)

	env.update(ToastMsg{Toast: surface.Toast{Kind: surface.ToastSuccess, Title: "Copied", Message: "Response copied to clipboard"}})
	if !strings.Contains(env.model.RenderStatusBar(), "Copied") {
		t.Errorf("toast missing from status bar: %q", env.model.RenderStatusBar())
	}

	env.update(toastExpiredMsg{seq: env.model.toastSeq - 1})
	if env.model.toast == nil {
		t.Error("stale expiry cleared the current toast")
	}

	env.update(toastExpiredMsg{seq: env.model.toastSeq})
	if env.model.toast != nil {
		t.Error("toast not cleared")
	}
}

func TestProviderSelection(t *testing.T) {
	env := newTestEnv(t)
	env.loadSettings(t)

	env.update(tea.KeyMsg{Type: tea.KeyCtrlP})
	if env.model.viewState != ViewProviders {
		t.Fatalf("viewState = %v, want ViewProviders", env.model.viewState)
	}

	env.update(tea.KeyMsg{Type: tea.KeyDown})
	want := env.model.providers[1].ID

	cmd := env.update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected an update command")
	}
	saved := cmd().(SettingsSavedMsg)
	if saved.Err != nil {
		t.Fatalf("save failed: %v", saved.Err)
	}

	sent := env.requester.last()
	if sent.Type != relay.TypeUpdateSettings {
		t.Fatalf("sent %s", sent.Type)
	}
	var patch map[string]interface{}
	if err := json.Unmarshal(sent.Settings, &patch); err != nil {
		t.Fatal(err)
	}
	if patch["activeProvider"] != want {
		t.Errorf("activeProvider = %v, want %s", patch["activeProvider"], want)
	}

	env.update(saved)
	if env.model.message != "Provider saved" {
		t.Errorf("message = %q", env.model.message)
	}
}

func TestModelSelectionMergesSelectedModels(t *testing.T) {
	env := newTestEnv(t)
	env.loadSettings(t)

	// move the cursor onto gemini
	for i, p := range env.model.providers {
		if p.ID == "gemini" {
			env.model.cursor = i
		}
	}
	env.model.viewState = ViewProviders
	env.update(runes("m"))
	if env.model.viewState != ViewModels {
		t.Fatalf("viewState = %v, want ViewModels", env.model.viewState)
	}

	p, _ := env.model.cursorProvider()
	if len(p.Models) < 2 {
		t.Skip("gemini needs at least two models")
	}
	env.model.modelCursor = 1

	cmd := env.update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected an update command")
	}
	cmd()

	var patch struct {
		SelectedModels map[string]string `json:"selectedModels"`
	}
	if err := json.Unmarshal(env.requester.last().Settings, &patch); err != nil {
		t.Fatal(err)
	}
	if patch.SelectedModels["gemini"] != p.Models[1] {
		t.Errorf("gemini model = %q, want %q", patch.SelectedModels["gemini"], p.Models[1])
	}
	if patch.SelectedModels["openai"] != "gpt-4o" {
		t.Errorf("existing selection lost: %v", patch.SelectedModels)
	}
}

func TestProfileFormSave(t *testing.T) {
	env := newTestEnv(t)
	env.loadSettings(t)

	env.update(tea.KeyMsg{Type: tea.KeyCtrlU})
	if env.model.viewState != ViewProfile {
		t.Fatalf("viewState = %v, want ViewProfile", env.model.viewState)
	}
	if got := env.model.formInputs[0].Value(); got != "Ada" {
		t.Errorf("name input = %q, want Ada", got)
	}

	env.update(tea.KeyMsg{Type: tea.KeyTab})
	env.update(runes("Engineer"))

	cmd := env.update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if cmd == nil {
		t.Fatal("expected an update command")
	}
	cmd()

	var patch struct {
		UserDetails map[string]string `json:"userDetails"`
	}
	if err := json.Unmarshal(env.requester.last().Settings, &patch); err != nil {
		t.Fatal(err)
	}
	if patch.UserDetails["name"] != "Ada" || patch.UserDetails["role"] != "Engineer" {
		t.Errorf("userDetails = %v", patch.UserDetails)
	}
}

func TestSettingsLoadError(t *testing.T) {
	env := newTestEnv(t)
	env.requester.err = errors.New("relay unavailable")

	env.update(loadSettings(context.Background(), env.requester)())
	if env.model.errorMsg != "relay unavailable" {
		t.Errorf("errorMsg = %q", env.model.errorMsg)
	}
	if !strings.Contains(env.model.RenderStatusBar(), "relay unavailable") {
		t.Error("error missing from status bar")
	}
}

func TestHelpView(t *testing.T) {
	env := newTestEnv(t)

	env.update(tea.KeyMsg{Type: tea.KeyF1})
	if env.model.viewState != ViewHelp {
		t.Fatalf("viewState = %v, want ViewHelp", env.model.viewState)
	}
	if !strings.Contains(env.model.View(), "@Ryco") {
		t.Error("help does not explain the trigger")
	}

	env.update(tea.KeyMsg{Type: tea.KeyEsc})
	if env.model.viewState != ViewCompose {
		t.Errorf("viewState = %v, want ViewCompose", env.model.viewState)
	}
}

func TestSettingsChangedReloads(t *testing.T) {
	env := newTestEnv(t)
	env.loadSettings(t)

	cmd := env.update(SettingsChangedMsg{Theme: "dark"})
	if env.model.settings.Theme != "dark" {
		t.Errorf("theme = %q, want dark", env.model.settings.Theme)
	}
	if cmd == nil {
		t.Fatal("expected a reload command")
	}
	if _, ok := cmd().(SettingsLoadedMsg); !ok {
		t.Error("reload did not produce SettingsLoadedMsg")
	}
}
