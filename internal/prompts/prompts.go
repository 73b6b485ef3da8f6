// Package prompts loads the prompt templates used by the brainstorming steps.
// Built-in templates can be overridden per name with <dir>/<name>.txt.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Template names.
const (
	Warmup       = "warmup"
	WarmupSystem = "warmup_system"
	Ideas        = "ideas"
	IdeasSystem  = "ideas_system"
	SWOT         = "swot"
	SWOTSystem   = "swot_system"
)

var names = []string{Warmup, WarmupSystem, Ideas, IdeasSystem, SWOT, SWOTSystem}

//go:embed templates/*.txt
var builtin embed.FS

// ErrMissingVar is returned when a template references a value that was not supplied.
var ErrMissingVar = errors.New("prompt variable missing")

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Set holds one template per name.
type Set struct {
	templates map[string]string
}

// Load reads the built-in templates and applies overrides from dir.
// An empty dir uses the built-ins only.
func Load(dir string) (*Set, error) {
	s := &Set{templates: make(map[string]string, len(names))}
	for _, name := range names {
		data, err := builtin.ReadFile("templates/" + name + ".txt")
		if err != nil {
			return nil, fmt.Errorf("read built-in prompt %s: %w", name, err)
		}
		s.templates[name] = strings.TrimSpace(string(data))

		if dir == "" {
			continue
		}
		data, err = os.ReadFile(filepath.Join(dir, name+".txt"))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", name, err)
		}
		if t := strings.TrimSpace(string(data)); t != "" {
			s.templates[name] = t
		}
	}
	return s, nil
}

// Render fills the {name} placeholders of the named template.
func (s *Set) Render(name string, vars map[string]string) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("render %s: %w: %s", name, ErrMissingVar, strings.Join(missing, ", "))
	}
	return out, nil
}

// Text returns the named template unrendered.
func (s *Set) Text(name string) string {
	return s.templates[name]
}
