package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"livereload/internal/abi"
)

const banner = "/* Code generated by livereload gen. DO NOT EDIT. */\n"

// File is one generated output.
type File struct {
	Name    string
	Content []byte
}

// Generate renders the header and export source for m. Output is
// deterministic for a given manifest.
func Generate(m Manifest) ([]File, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return []File{
		{Name: m.Prefix + "_abi.h", Content: []byte(header(m))},
		{Name: m.Prefix + "_export.c", Content: []byte(export(m))},
	}, nil
}

// WriteFiles generates into dir, creating it when needed.
func WriteFiles(m Manifest, dir string) ([]string, error) {
	files, err := Generate(m)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, f := range files {
		p := filepath.Join(dir, f.Name)
		if err := os.WriteFile(p, f.Content, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func guard(prefix string) string {
	return strings.ToUpper(prefix) + "_ABI_H"
}

func header(m Manifest) string {
	var b strings.Builder
	b.WriteString(banner)
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", guard(m.Prefix), guard(m.Prefix))
	b.WriteString("#include <stddef.h>\n#include <stdint.h>\n\n")
	fmt.Fprintf(&b, "#define LR_MAGIC 0x%08Xu\n", abi.Magic)
	fmt.Fprintf(&b, "#define LR_VERSION %du\n", abi.Version)
	fmt.Fprintf(&b, "#define LR_HOST_SIGNATURE 0x%016xull\n", m.Signature())
	b.WriteString("#define LR_NO 0\n#define LR_YES 1\n\n")

	if m.Host != nil {
		l := m.Host.Layout
		fmt.Fprintf(&b, "typedef struct %s {\n", l.Name)
		for _, f := range l.Fields {
			fmt.Fprintf(&b, "\t%s\n", f.Decl())
		}
		fmt.Fprintf(&b, "} %s;\n\n", l.Name)
	}

	b.WriteString("typedef struct lr_api {\n")
	b.WriteString("\tuint32_t magic;\n\tuint32_t version;\n\tuint64_t host_signature;\n")
	b.WriteString("\tsize_t (*size)(void);\n")
	for _, e := range []string{"init", "reload"} {
		fmt.Fprintf(&b, "\tvoid (*%s)(void *host, void *state);\n", e)
	}
	b.WriteString("\tint32_t (*update)(void *host, void *state);\n")
	for _, e := range []string{"unload", "deinit"} {
		fmt.Fprintf(&b, "\tvoid (*%s)(void *host, void *state);\n", e)
	}
	b.WriteString("} lr_api;\n\n")

	fmt.Fprintf(&b, "/*\n * %s lives in a buffer owned by the host and survives reloads.\n", m.State)
	b.WriteString(" * Fields may only be appended; new fields start zeroed. The library must\n")
	b.WriteString(" * not keep globals or static data that has to outlive a reload.\n */\n")
	fmt.Fprintf(&b, "extern const lr_api %s;\n\n", abi.SymbolName)
	fmt.Fprintf(&b, "#endif /* %s */\n", guard(m.Prefix))
	return b.String()
}

func export(m Manifest) string {
	var b strings.Builder
	b.WriteString(banner)
	fmt.Fprintf(&b, "#include %q\n", m.Prefix+"_abi.h")
	fmt.Fprintf(&b, "#include %q\n\n", m.Include)

	st := m.State
	c := m.Callbacks
	params := st + " *state"
	args := "(" + st + " *)state"
	if m.Host != nil {
		params = m.Host.Layout.Name + " *host, " + params
		args = "(" + m.Host.Layout.Name + " *)host, " + args
	}

	type entry struct{ slot, fn, ret string }
	entries := []entry{
		{"init", c.Init, "void"},
		{"reload", m.reloadName(), "void"},
		{"update", c.Update, "int32_t"},
		{"unload", c.Unload, "void"},
		{"deinit", c.Deinit, "void"},
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s(%s);\n", e.ret, e.fn, params)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "static size_t %s_lr_size(void) { return sizeof(%s); }\n", m.Prefix, st)
	for _, e := range entries {
		fmt.Fprintf(&b, "static %s %s_lr_%s(void *host, void *state) {\n", e.ret, m.Prefix, e.slot)
		if m.Host == nil {
			b.WriteString("\t(void)host;\n")
		}
		ret := ""
		if e.ret != "void" {
			ret = "return "
		}
		fmt.Fprintf(&b, "\t%s%s(%s);\n}\n", ret, e.fn, args)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "__attribute__((visibility(\"default\")))\nconst lr_api %s = {\n", abi.SymbolName)
	b.WriteString("\tLR_MAGIC,\n\tLR_VERSION,\n\tLR_HOST_SIGNATURE,\n")
	fmt.Fprintf(&b, "\t%s_lr_size,\n", m.Prefix)
	for _, e := range entries {
		fmt.Fprintf(&b, "\t%s_lr_%s,\n", m.Prefix, e.slot)
	}
	b.WriteString("};\n")
	return b.String()
}
