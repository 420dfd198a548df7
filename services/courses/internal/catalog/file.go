package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a catalog file (JSON, or YAML for .yaml/.yml) holding an
// ordered list of courses, validates it and returns a Static accessor.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	courses, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if err := ValidateAll(courses); err != nil {
		return nil, fmt.Errorf("validate catalog %s: %w", path, err)
	}
	return NewStatic(courses), nil
}

// Decode parses a course list. ext selects the format; anything other than
// .yaml/.yml is treated as JSON.
func Decode(data []byte, ext string) ([]Course, error) {
	var courses []Course
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &courses); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &courses); err != nil {
			return nil, err
		}
	}
	if courses == nil {
		courses = []Course{}
	}
	return courses, nil
}
