// Package prompts holds the LLM instruction templates used for scoring and
// letter drafting. Templates are JSON objects of key to text, embedded at
// compile time.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

// Evaluation is the template file for scoring and letters.
const Evaluation = "evaluation.json"

//go:embed *.json
var embedded embed.FS

// Library loads template files from a filesystem and keeps them parsed.
type Library struct {
	fsys fs.FS

	mu    sync.RWMutex
	files map[string]map[string]string
}

// NewLibrary returns a library reading from fsys.
func NewLibrary(fsys fs.FS) *Library {
	return &Library{fsys: fsys, files: make(map[string]map[string]string)}
}

var defaultLibrary = NewLibrary(embedded)

// Get returns one template from the embedded files.
func Get(filename, key string) (string, error) {
	return defaultLibrary.Get(filename, key)
}

// MustGet is Get for templates that ship with the binary; a miss panics.
func MustGet(filename, key string) string {
	prompt, err := defaultLibrary.Get(filename, key)
	if err != nil {
		panic(fmt.Sprintf("failed to load prompt: %v", err))
	}
	return prompt
}

// Render looks up an embedded template and fills its placeholders.
func Render(filename, key string, data map[string]string) string {
	return Format(MustGet(filename, key), data)
}

// List returns the keys of an embedded file, sorted.
func List(filename string) ([]string, error) {
	return defaultLibrary.List(filename)
}

// ClearCache drops the parsed embedded files. Tests use it.
func ClearCache() {
	defaultLibrary.Reset()
}

// Format replaces placeholders in the form {{.Key}} with values from data.
// Unknown placeholders are left in place.
func Format(template string, data map[string]string) string {
	if len(data) == 0 {
		return template
	}
	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{{."+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Get returns the template stored under key in filename.
func (l *Library) Get(filename, key string) (string, error) {
	templates, err := l.load(filename)
	if err != nil {
		return "", err
	}
	prompt, ok := templates[key]
	if !ok {
		return "", fmt.Errorf("prompt key %q not found in %s", key, filename)
	}
	return prompt, nil
}

// List returns the keys of filename, sorted.
func (l *Library) List(filename string) ([]string, error) {
	templates, err := l.load(filename)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(templates))
	for key := range templates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Reset drops every parsed file.
func (l *Library) Reset() {
	l.mu.Lock()
	l.files = make(map[string]map[string]string)
	l.mu.Unlock()
}

func (l *Library) cached(filename string) (map[string]string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	templates, ok := l.files[filename]
	return templates, ok
}

func (l *Library) load(filename string) (map[string]string, error) {
	if templates, ok := l.cached(filename); ok {
		return templates, nil
	}

	data, err := fs.ReadFile(l.fsys, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", filename, err)
	}
	var templates map[string]string
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", filename, err)
	}

	l.mu.Lock()
	l.files[filename] = templates
	l.mu.Unlock()
	return templates, nil
}
