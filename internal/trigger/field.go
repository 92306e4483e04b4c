package trigger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ryco/config/storage"
)

// Field is an editable text the detector can watch
type Field interface {
	ID() string
	Text() (string, error)
	// Caret is the cursor's byte offset
	Caret() int
	SetText(text string) error
}

// InputNotifier is implemented by fields whose owners must hear about
// programmatic edits
type InputNotifier interface {
	NotifyInput()
}

// Kind classifies an element that might hold user text
type Kind string

const (
	KindInputText       Kind = "input:text"
	KindInputSearch     Kind = "input:search"
	KindInputEmail      Kind = "input:email"
	KindInputURL        Kind = "input:url"
	KindInputTel        Kind = "input:tel"
	KindInputNumber     Kind = "input:number"
	KindInput           Kind = "input"
	KindTextarea        Kind = "textarea"
	KindContentEditable Kind = "contenteditable"
	KindRoleTextbox     Kind = "role:textbox"
	KindQuill           Kind = "ql-editor"
	KindTinyMCE         Kind = "tox-edit-area"
	KindProseMirror     Kind = "ProseMirror"
	KindDraftJS         Kind = "DraftEditor-editorContainer"
)

var editableKinds = map[Kind]bool{
	KindInputText:       true,
	KindInputSearch:     true,
	KindInputEmail:      true,
	KindInputURL:        true,
	KindInputTel:        true,
	KindInputNumber:     true,
	KindInput:           true,
	KindTextarea:        true,
	KindContentEditable: true,
	KindRoleTextbox:     true,
	KindQuill:           true,
	KindTinyMCE:         true,
	KindProseMirror:     true,
	KindDraftJS:         true,
}

// IsEditable reports whether elements of kind accept typed text.
// Password and hidden inputs are not editable for our purposes.
func IsEditable(kind Kind) bool {
	return editableKinds[kind]
}

// Classified is implemented by fields that know their element kind.
// Fields without a kind are assumed editable.
type Classified interface {
	Kind() Kind
}

func editable(field Field) bool {
	c, ok := field.(Classified)
	return !ok || IsEditable(c.Kind())
}

// TextField is an in-memory Field, used by the terminal UI
type TextField struct {
	id string

	mu       sync.Mutex
	text     string
	caret    int
	onChange func(text string)
}

// NewTextField creates a TextField with the caret at the end
func NewTextField(id, text string) *TextField {
	return &TextField{id: id, text: text, caret: len(text)}
}

// Kind reports the composer as a textarea
func (f *TextField) Kind() Kind {
	return KindTextarea
}

func (f *TextField) ID() string {
	return f.id
}

func (f *TextField) Text() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, nil
}

func (f *TextField) Caret() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caret
}

// Set records a user edit
func (f *TextField) Set(text string, caret int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.caret = clamp(caret, 0, len(text))
}

// SetText replaces the text and moves the caret to the end
func (f *TextField) SetText(text string) error {
	f.Set(text, len(text))
	return nil
}

// OnChange registers a callback for programmatic edits
func (f *TextField) OnChange(fn func(text string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

func (f *TextField) NotifyInput() {
	f.mu.Lock()
	fn, text := f.onChange, f.text
	f.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// DefaultExtensions are the file types DirWatcher treats as editable
var DefaultExtensions = []string{".txt", ".md", ".markdown", ".text"}

// FileField is a Field over a text file; the caret is always at the end
type FileField struct {
	path    string
	kind    Kind
	backups *storage.BackupManager
}

// NewFileField creates a FileField. When backups is non-nil every write
// keeps a copy of the previous content.
func NewFileField(path string, backups *storage.BackupManager) *FileField {
	return &FileField{path: path, kind: fileKind(path, DefaultExtensions), backups: backups}
}

// Kind is a textarea for text files and empty for anything else
func (f *FileField) Kind() Kind {
	return f.kind
}

func (f *FileField) ID() string {
	return f.path
}

func (f *FileField) Text() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *FileField) Caret() int {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0
	}
	return int(info.Size())
}

func (f *FileField) SetText(text string) error {
	return storage.AtomicFileUpdate(f.path, []byte(text), f.backups)
}

// fileKind classifies path: a file with one of exts is a textarea. Other
// files, including our own temp and backup files, have no kind.
func fileKind(path string, exts []string) Kind {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.Contains(base, ".ryco-backup-") {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range exts {
		if ext == e {
			return KindTextarea
		}
	}
	return ""
}
