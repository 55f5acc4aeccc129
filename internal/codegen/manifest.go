// Package codegen writes the C glue an artifact needs to be loadable by the
// reloader: a header with the table and host typedefs, and a source file that
// wraps the author's typed callbacks and exports the table.
package codegen

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"livereload/internal/abi"
)

// Callbacks names the author's C functions. Host-less artifacts may name
// their reload callback Load instead of Reload.
type Callbacks struct {
	Init   string `yaml:"init"`
	Reload string `yaml:"reload,omitempty"`
	Load   string `yaml:"load,omitempty"`
	Update string `yaml:"update"`
	Unload string `yaml:"unload"`
	Deinit string `yaml:"deinit"`
}

// HostSpec is either the keyword "standard" or a custom layout.
type HostSpec struct {
	Standard bool
	Layout   abi.HostLayout
}

// UnmarshalYAML accepts `host: standard` or `host: {name: ..., fields: [...]}`.
func (h *HostSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		if n.Value != "standard" {
			return fmt.Errorf("host: unknown layout %q (want \"standard\" or a mapping)", n.Value)
		}
		h.Standard = true
		h.Layout = abi.StandardHost
		return nil
	}
	return n.Decode(&h.Layout)
}

// Manifest describes one artifact.
type Manifest struct {
	Prefix    string    `yaml:"prefix"`
	State     string    `yaml:"state"`
	Include   string    `yaml:"include"`
	Host      *HostSpec `yaml:"host,omitempty"`
	Callbacks Callbacks `yaml:"callbacks"`
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return m, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ValidationError lists every problem found in a manifest.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid manifest: " + strings.Join(e.Problems, "; ")
}

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typeRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ ]*[\s*]*$`)
)

// Validate checks that every name is usable in generated C.
func (m Manifest) Validate() error {
	var p []string
	ident := func(field, v string) {
		switch {
		case v == "":
			p = append(p, field+" is required")
		case !identRe.MatchString(v):
			p = append(p, fmt.Sprintf("%s %q is not a C identifier", field, v))
		case strings.HasPrefix(v, "lr_"):
			p = append(p, fmt.Sprintf("%s %q uses the reserved lr_ prefix", field, v))
		}
	}
	ident("prefix", m.Prefix)
	if m.State == "" {
		p = append(p, "state is required")
	} else if !typeRe.MatchString(m.State) {
		p = append(p, fmt.Sprintf("state %q is not a C type", m.State))
	}
	if m.Include == "" {
		p = append(p, "include is required")
	}

	c := m.Callbacks
	ident("callbacks.init", c.Init)
	ident("callbacks.update", c.Update)
	ident("callbacks.unload", c.Unload)
	ident("callbacks.deinit", c.Deinit)
	switch {
	case c.Reload != "" && c.Load != "":
		p = append(p, "callbacks.reload and callbacks.load are mutually exclusive")
	case c.Load != "" && m.Host != nil:
		p = append(p, "callbacks.load is only valid without a host; use callbacks.reload")
	case c.Load != "":
		ident("callbacks.load", c.Load)
	default:
		ident("callbacks.reload", c.Reload)
	}

	if m.Host != nil && !m.Host.Standard {
		l := m.Host.Layout
		if !identRe.MatchString(l.Name) {
			p = append(p, fmt.Sprintf("host.name %q is not a C identifier", l.Name))
		}
		if len(l.Fields) == 0 {
			p = append(p, "host.fields must not be empty")
		}
		for i, f := range l.Fields {
			if !identRe.MatchString(f.Name) {
				p = append(p, fmt.Sprintf("host.fields[%d].name %q is not a C identifier", i, f.Name))
			}
			if strings.TrimSpace(f.Type) == "" {
				p = append(p, fmt.Sprintf("host.fields[%d].type is required", i))
			}
		}
	}
	if len(p) > 0 {
		return &ValidationError{Problems: p}
	}
	return nil
}

// reloadName is the callback run after a load that is not the first.
func (m Manifest) reloadName() string {
	if m.Callbacks.Load != "" {
		return m.Callbacks.Load
	}
	return m.Callbacks.Reload
}

// Signature is the host signature exported in the table; zero without a host.
func (m Manifest) Signature() uint64 {
	if m.Host == nil {
		return 0
	}
	return m.Host.Layout.Signature()
}
