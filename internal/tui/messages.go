package tui

import (
	"ryco/config/models"
	"ryco/internal/providers"
	"ryco/internal/surface"
	"ryco/internal/trigger"
)

// SettingsLoadedMsg is sent when settings arrive from the relay
type SettingsLoadedMsg struct {
	Settings  models.View
	Providers []providers.Descriptor
	Err       error
}

// SettingsSavedMsg is sent when a settings update completes
type SettingsSavedMsg struct {
	What string
	Err  error
}

// TriggerMsg is sent when the composer completes a trigger
type TriggerMsg struct {
	Event trigger.Event
}

// AskDoneMsg is sent when the relay answers a chat request
type AskDoneMsg struct {
	View surface.View
	Err  error
}

// StreamUpdateMsg is sent when the response changed
type StreamUpdateMsg struct{}

// ToastMsg carries a notification from the surface
type ToastMsg struct {
	Toast surface.Toast
}

// toastExpiredMsg hides toast number seq
type toastExpiredMsg struct {
	seq int
}

// SettingsChangedMsg is sent when the relay reports a settings edit
type SettingsChangedMsg struct {
	Theme string
}
