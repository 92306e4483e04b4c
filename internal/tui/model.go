// Package tui is the interactive composer: a text area that fires on
// "@Ryco <prompt>//" and shows the streamed response below it.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"ryco/config/models"
	"ryco/internal/providers"
	"ryco/internal/relay"
	"ryco/internal/surface"
	"ryco/internal/trigger"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents the current view state
type ViewState int

const (
	ViewCompose   ViewState = iota // Composer
	ViewResponse                   // Composer with the response panel open
	ViewProviders                  // Provider list
	ViewModels                     // Model list
	ViewProfile                    // Profile form
	ViewHelp                       // Help panel
)

// toastDuration is how long a toast stays in the status bar
const toastDuration = 3 * time.Second

// Model is the core state model for TUI
type Model struct {
	ctx       context.Context
	requester surface.Requester
	detector  *trigger.Detector
	surface   *surface.Surface
	field     *trigger.TextField
	tabID     string

	keys     KeyMap
	input    textarea.Model
	response viewport.Model

	viewState ViewState
	settings  models.View
	providers []providers.Descriptor

	cursor      int // Cursor in the provider list
	modelCursor int // Cursor in the model list

	formInputs []textinput.Model
	formFocus  int

	message  string
	errorMsg string
	toast    *surface.Toast
	toastSeq int

	width  int
	height int
}

// NewModel creates a new TUI model. field must already be observed by
// detector.
func NewModel(ctx context.Context, r surface.Requester, d *trigger.Detector, s *surface.Surface, field *trigger.TextField, tabID string) Model {
	input := textarea.New()
	input.Placeholder = "Write here. Type @Ryco <prompt>// to ask."
	input.ShowLineNumbers = false
	input.SetWidth(80)
	input.SetHeight(8)
	input.Focus()

	return Model{
		ctx:       ctx,
		requester: r,
		detector:  d,
		surface:   s,
		field:     field,
		tabID:     tabID,
		keys:      DefaultKeyMap(),
		input:     input,
		response:  viewport.New(78, 8),
		viewState: ViewCompose,
		width:     80,
		height:    24,
	}
}

// Init initializes the model and returns initial commands
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		loadSettings(m.ctx, m.requester),
		waitForTrigger(m.detector),
		waitForUpdate(m.surface),
		waitForToast(m.surface),
	)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case SettingsLoadedMsg:
		if msg.Err != nil {
			m.errorMsg = msg.Err.Error()
			return m, nil
		}
		m.settings = msg.Settings
		m.providers = msg.Providers
		if m.cursor >= len(m.providers) {
			m.cursor = 0
		}
		return m, nil

	case SettingsSavedMsg:
		if msg.Err != nil {
			m.errorMsg = msg.Err.Error()
			m.message = ""
			return m, nil
		}
		m.errorMsg = ""
		m.message = msg.What + " saved"
		return m, loadSettings(m.ctx, m.requester)

	case SettingsChangedMsg:
		m.settings.Theme = msg.Theme
		return m, loadSettings(m.ctx, m.requester)

	case TriggerMsg:
		m.viewState = ViewResponse
		m.errorMsg = ""
		m.refreshResponse()
		return m, tea.Batch(
			waitForTrigger(m.detector),
			ask(m.ctx, m.surface, m.requester, m.tabID, msg.Event),
		)

	case AskDoneMsg:
		m.refreshResponse()
		return m, nil

	case StreamUpdateMsg:
		if m.viewState == ViewResponse {
			if _, ok := m.surface.View(); !ok {
				m.viewState = ViewCompose
			}
		}
		m.refreshResponse()
		return m, waitForUpdate(m.surface)

	case ToastMsg:
		t := msg.Toast
		m.toast = &t
		m.toastSeq++
		return m, tea.Batch(waitForToast(m.surface), expireToast(m.toastSeq))

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
		return m, nil
	}

	if m.viewState == ViewProfile {
		return m.updateFormInputs(msg)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the current view
func (m Model) View() string {
	switch m.viewState {
	case ViewProviders:
		return m.RenderProviderView()
	case ViewModels:
		return m.RenderModelView()
	case ViewProfile:
		return RenderForm(m.formInputs, m.formFocus, "Profile", m.errorMsg)
	case ViewHelp:
		return m.RenderHelpView()
	default:
		return m.RenderComposeView()
	}
}

// handleKeyMsg processes keyboard input based on current view state
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.surface.Cancel()
		return m, tea.Quit
	}

	switch m.viewState {
	case ViewResponse:
		return m.handleResponseKeys(msg)
	case ViewProviders:
		return m.handleProviderKeys(msg)
	case ViewModels:
		return m.handleModelKeys(msg)
	case ViewProfile:
		return m.handleProfileKeys(msg)
	case ViewHelp:
		if key.Matches(msg, m.keys.Cancel, m.keys.Help) || msg.String() == "q" {
			m.viewState = ViewCompose
		}
		return m, nil
	default:
		return m.handleComposeKeys(msg)
	}
}

func (m Model) handleComposeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Providers):
		m.viewState = ViewProviders
		m.clearStatus()
		return m, nil
	case key.Matches(msg, m.keys.Profile):
		m.formInputs = ProfileInputs()
		SetProfile(m.formInputs, m.settings.UserDetails)
		m.formFocus = 0
		m.viewState = ViewProfile
		m.clearStatus()
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.viewState = ViewHelp
		return m, nil
	}
	return m.typeKey(msg)
}

func (m Model) handleResponseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v, open := m.surface.View()

	switch {
	case key.Matches(msg, m.keys.Insert) && open && v.Text != "":
		if err := m.surface.Insert(); err != nil {
			return m, nil
		}
		text, _ := m.field.Text()
		m.input.SetValue(text)
		m.viewState = ViewCompose
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		if err := m.surface.Copy(); err != nil {
			return m, nil
		}
		m.viewState = ViewCompose
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		m.surface.Cancel()
		m.viewState = ViewCompose
		return m, nil

	case msg.Type == tea.KeyPgUp || msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.response, cmd = m.response.Update(msg)
		return m, cmd
	}

	// typing continues while the response is open; Insert re-reads the text
	return m.typeKey(msg)
}

// typeKey feeds a key to the composer and reports the edit to the detector
func (m Model) typeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.syncField(msg.String())
	return m, cmd
}

// syncField copies the composer into the field. Text edits are the input
// hook; every key is also offered to the keyup hook, which only checks on
// space, Enter and "/".
func (m *Model) syncField(keyName string) {
	value := m.input.Value()
	info := m.input.LineInfo()
	caret := caretOffset(value, m.input.Line(), info.StartColumn+info.ColumnOffset)
	prev, _ := m.field.Text()
	if prev != value || m.field.Caret() != caret {
		m.field.Set(value, caret)
	}
	if prev != value {
		m.detector.Notify(m.field)
	}
	m.detector.NotifyKey(m.field, keyName)
}

func (m Model) handleProviderKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.viewState = ViewCompose
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.providers)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Models):
		p, ok := m.cursorProvider()
		if !ok {
			return m, nil
		}
		m.modelCursor = 0
		current := p.ResolveModel(m.settings.SelectedModels[p.ID])
		for i, model := range p.Models {
			if model == current {
				m.modelCursor = i
			}
		}
		m.viewState = ViewModels
	case key.Matches(msg, m.keys.Select):
		p, ok := m.cursorProvider()
		if !ok {
			return m, nil
		}
		m.viewState = ViewCompose
		return m, updateSettings(m.ctx, m.requester, "Provider", map[string]interface{}{
			"activeProvider": p.ID,
		})
	}
	return m, nil
}

func (m Model) handleModelKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p, ok := m.cursorProvider()
	if !ok {
		m.viewState = ViewProviders
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.viewState = ViewProviders
	case key.Matches(msg, m.keys.Up):
		if m.modelCursor > 0 {
			m.modelCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.modelCursor < len(p.Models)-1 {
			m.modelCursor++
		}
	case key.Matches(msg, m.keys.Select):
		if m.modelCursor >= len(p.Models) {
			return m, nil
		}
		selected := make(map[string]string, len(m.settings.SelectedModels)+1)
		for id, model := range m.settings.SelectedModels {
			selected[id] = model
		}
		selected[p.ID] = p.Models[m.modelCursor]
		m.viewState = ViewProviders
		return m, updateSettings(m.ctx, m.requester, "Model", map[string]interface{}{
			"selectedModels": selected,
		})
	}
	return m, nil
}

func (m Model) handleProfileKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.viewState = ViewCompose
		m.errorMsg = ""
		return m, nil
	case key.Matches(msg, m.keys.Save):
		details := GetProfile(m.formInputs)
		m.viewState = ViewCompose
		return m, updateSettings(m.ctx, m.requester, "Profile", map[string]interface{}{
			"userDetails": details,
		})
	case key.Matches(msg, m.keys.Next):
		m.formFocus = NextFormField(m.formInputs, m.formFocus)
		return m, nil
	case key.Matches(msg, m.keys.Prev):
		m.formFocus = PrevFormField(m.formInputs, m.formFocus)
		return m, nil
	}
	return m.updateFormInputs(msg)
}

func (m Model) updateFormInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, len(m.formInputs))
	for i := range m.formInputs {
		m.formInputs[i], cmds[i] = m.formInputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) cursorProvider() (providers.Descriptor, bool) {
	if m.cursor < 0 || m.cursor >= len(m.providers) {
		return providers.Descriptor{}, false
	}
	return m.providers[m.cursor], true
}

func (m *Model) clearStatus() {
	m.message = ""
	m.errorMsg = ""
}

func (m *Model) resize() {
	m.input.SetWidth(m.width)
	inputHeight := m.height / 3
	if inputHeight < 3 {
		inputHeight = 3
	}
	m.input.SetHeight(inputHeight)

	m.response.Width = m.width - 4
	respHeight := m.height - inputHeight - 8
	if respHeight < 3 {
		respHeight = 3
	}
	m.response.Height = respHeight
}

func (m *Model) refreshResponse() {
	v, ok := m.surface.View()
	if !ok {
		m.response.SetContent("")
		return
	}
	text := v.Text
	if text == "" && v.Err == nil {
		text = "Thinking..."
	}
	m.response.SetContent(text)
	m.response.GotoBottom()
}

// caretOffset converts a row and rune column into a byte offset in value
func caretOffset(value string, row, col int) int {
	lines := strings.Split(value, "\n")
	if row >= len(lines) {
		return len(value)
	}
	offset := 0
	for _, line := range lines[:row] {
		offset += len(line) + 1
	}
	runes := []rune(lines[row])
	if col > len(runes) {
		col = len(runes)
	}
	if col < 0 {
		col = 0
	}
	return offset + len(string(runes[:col]))
}

// Commands

func loadSettings(ctx context.Context, r surface.Requester) tea.Cmd {
	return func() tea.Msg {
		reply, err := r.Request(ctx, relay.Message{Type: relay.TypeGetSettings})
		if err != nil {
			return SettingsLoadedMsg{Err: err}
		}
		if !reply.OK() {
			return SettingsLoadedMsg{Err: errors.New(reply.Error)}
		}
		var v models.View
		if err := json.Unmarshal(reply.Settings, &v); err != nil {
			return SettingsLoadedMsg{Err: err}
		}
		return SettingsLoadedMsg{Settings: v, Providers: reply.Providers}
	}
}

func updateSettings(ctx context.Context, r surface.Requester, what string, patch map[string]interface{}) tea.Cmd {
	return func() tea.Msg {
		raw, err := json.Marshal(patch)
		if err != nil {
			return SettingsSavedMsg{What: what, Err: err}
		}
		reply, err := r.Request(ctx, relay.Message{Type: relay.TypeUpdateSettings, Settings: raw})
		if err != nil {
			return SettingsSavedMsg{What: what, Err: err}
		}
		if !reply.OK() {
			return SettingsSavedMsg{What: what, Err: errors.New(reply.Error)}
		}
		return SettingsSavedMsg{What: what}
	}
}

func ask(ctx context.Context, s *surface.Surface, r surface.Requester, tabID string, ev trigger.Event) tea.Cmd {
	return func() tea.Msg {
		v, err := s.Ask(ctx, r, tabID, ev.Field, ev.Match)
		return AskDoneMsg{View: v, Err: err}
	}
}

func waitForTrigger(d *trigger.Detector) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-d.Events()
		if !ok {
			return nil
		}
		return TriggerMsg{Event: ev}
	}
}

func waitForUpdate(s *surface.Surface) tea.Cmd {
	return func() tea.Msg {
		<-s.Updates()
		return StreamUpdateMsg{}
	}
}

func waitForToast(s *surface.Surface) tea.Cmd {
	return func() tea.Msg {
		return ToastMsg{Toast: <-s.Toasts()}
	}
}

func expireToast(seq int) tea.Cmd {
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}
