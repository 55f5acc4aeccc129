package abi

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Field is one member of a host-capability struct as seen from C. When Params
// is set the field is a function pointer: `Type (*Name)(Params);`.
type Field struct {
	Name   string `yaml:"name" json:"name"`
	Type   string `yaml:"type" json:"type"`
	Params string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Decl renders the field as a C struct member declaration.
func (f Field) Decl() string {
	if f.Params != "" {
		return fmt.Sprintf("%s (*%s)(%s);", f.Type, f.Name, f.Params)
	}
	return fmt.Sprintf("%s %s;", f.Type, f.Name)
}

// HostLayout describes the C struct the host passes as the first argument of
// every lifecycle call. Host and artifact must agree on it byte for byte.
type HostLayout struct {
	Name   string  `yaml:"name" json:"name"`
	Fields []Field `yaml:"fields" json:"fields"`
}

// Descriptor is the canonical text hashed into the signature.
func (l HostLayout) Descriptor() string {
	var b strings.Builder
	fmt.Fprintf(&b, "v%d:%s{", Version, l.Name)
	for _, f := range l.Fields {
		b.WriteString(normalizeSpace(f.Decl()))
	}
	b.WriteString("}")
	return b.String()
}

// Signature is the 64-bit hash of Descriptor. It is never zero, zero being
// reserved for the host-less variant.
func (l HostLayout) Signature() uint64 {
	s := xxhash.Sum64String(l.Descriptor())
	if s == 0 {
		s = 1
	}
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StandardHost is the layout of hostcap.Host, the host value shipped with the
// livereload runner.
var StandardHost = HostLayout{
	Name: "lr_host",
	Fields: []Field{
		{Name: "version", Type: "uint32_t"},
		{Name: "reserved", Type: "uint32_t"},
		{Name: "log", Type: "void", Params: "int32_t level, const char *msg"},
	},
}

// Log levels accepted by the standard host's log callback.
const (
	LogDebug int32 = 0
	LogInfo  int32 = 1
	LogWarn  int32 = 2
	LogError int32 = 3
)
