// Package bookmarks imports Homepage bookmark and service files as
// bookmarked websites.
package bookmarks

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Loader reads a Homepage YAML file from disk.
type Loader struct {
	filePath string
}

func NewLoader(filePath string) *Loader {
	return &Loader{filePath: filePath}
}

func (l *Loader) Path() string {
	return l.filePath
}

// Load reads and parses the file. Homepage template variables
// ({{HOMEPAGE_VAR_...}}) are blanked before parsing.
func (l *Loader) Load() (File, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmarks file: %w", err)
	}
	return Parse(data)
}

// Parse decodes Homepage YAML from memory.
func Parse(data []byte) (File, error) {
	data = templateVar.ReplaceAll(data, []byte(`""`))

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks yaml: %w", err)
	}
	return file, nil
}
