package template

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// LoadYAML parses a custom event-structure template from r, for
// operators whose event doesn't fit one of the Builtin shapes (spec
// §6 names the template document shape; it does not restrict
// templates to the built-in set).
func LoadYAML(r io.Reader) (Template, error) {
	var tmpl Template
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tmpl); err != nil {
		return Template{}, fmt.Errorf("load template: %w", err)
	}
	if tmpl.Format == "" {
		return Template{}, fmt.Errorf("load template: missing required field %q", "format")
	}
	return tmpl, nil
}
