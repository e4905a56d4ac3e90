// Package config loads YAML configuration files with environment variable
// substitution.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v2"
)

// FromFile reads the YAML file at filePath into cfg. The file is rendered as a
// Go template over the process environment first, and plain $VAR / ${VAR}
// references are expanded as well.
func FromFile(filePath string, cfg interface{}) error {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	t, err := template.New(filepath.Base(filePath)).Parse(string(raw))
	if err != nil {
		return err
	}

	env := make(map[string]string)
	for _, entry := range os.Environ() {
		if key, value, ok := strings.Cut(entry, "="); ok {
			env[key] = value
		}
	}

	rendered := &strings.Builder{}
	if err := t.Execute(rendered, env); err != nil {
		return err
	}

	return yaml.Unmarshal([]byte(os.ExpandEnv(rendered.String())), cfg)
}
