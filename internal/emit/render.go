package emit

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	tmplFile           = "file"
	tmplConversion     = "conversion"
	tmplFn             = "fn"
	tmplCallback       = "callback"
	tmplVTable         = "vtable"
	tmplForward        = "forward"
	tmplVTableInstance = "vtable_instance"
)

const templatePattern = "templates/*.tmpl"

var (
	templates    *template.Template
	tmplInitOnce sync.Once
	tmplInitErr  error
)

// validateTemplates ensures every template the engine executes is defined.
func validateTemplates(t *template.Template) error {
	for _, name := range []string{tmplFile, tmplConversion, tmplFn, tmplCallback, tmplVTable, tmplForward, tmplVTableInstance} {
		if t.Lookup(name) == nil {
			return fmt.Errorf("required template %q not found", name)
		}
	}
	return nil
}

// ensureTemplates parses and validates templates exactly once.
func ensureTemplates() error {
	tmplInitOnce.Do(func() {
		var t *template.Template
		t, tmplInitErr = template.New("glue").Funcs(template.FuncMap{
			"join": strings.Join,
		}).ParseFS(templateFS, templatePattern)
		if tmplInitErr != nil {
			return
		}
		if tmplInitErr = validateTemplates(t); tmplInitErr == nil {
			templates = t
		}
	})
	return tmplInitErr
}

type fieldDecl struct {
	Attrs string
	Name  string
	Type  string
}

type variantDecl struct {
	Attrs string
	Decl  string
}

type conversionData struct {
	Attrs    string
	Name     string
	Target   string
	Enum     bool
	Fields   []fieldDecl
	Variants []variantDecl
	From     string
	To       string
	Drop     []string
}

type fnData struct {
	Attrs  string
	Export bool
	// Rust: a plain Rust fn rather than an extern one.
	Rust   bool
	Name   string
	Params []string
	Output string
	Body   []string
}

type callbackData struct {
	Attrs      string
	Name       string
	Caller     string
	Destructor string
	Params     []string
	Output     string
	Body       []string
}

type vtableData struct {
	Attrs   string
	Name    string
	Slots   []string
	Markers []string
}

type forwardMethod struct {
	Sig  string
	Body []string
}

type forwardData struct {
	Attrs   string
	Trait   string
	Object  string
	Methods []forwardMethod
}

type vtableInstanceData struct {
	Attrs  string
	Static string
	VTable string
	Slots  []string
}

type fileData struct {
	Types    string
	Generics string
}

func execute(name string, data any) string {
	if err := ensureTemplates(); err != nil {
		panic(fmt.Sprintf("emit: %v", err))
	}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		// The templates are fixed and the data types match them.
		panic(fmt.Sprintf("emit: template %s: %v", name, err))
	}
	return b.String()
}

// attrs renders attributes one per line at the given indent.
func attrs(as syntax.Attributes, indent string) string {
	return as.Render(indent)
}

// inline renders attributes on one line ahead of a parameter or pattern.
func inline(as syntax.Attributes) string {
	var b strings.Builder
	for _, a := range as {
		b.WriteString(a.String())
		b.WriteByte(' ')
	}
	return b.String()
}

func ffiField(i int) string { return "o_" + strconv.Itoa(i) }

func itoa(i int) string { return strconv.Itoa(i) }

// module is one node of the generated module tree.
type module struct {
	name     string
	children map[string]*module
	blocks   []string
}

func newModule(name string) *module {
	return &module{name: name, children: make(map[string]*module)}
}

func (m *module) child(name string) *module {
	c, ok := m.children[name]
	if !ok {
		c = newModule(name)
		m.children[name] = c
	}
	return c
}

func (m *module) write(b *bytes.Buffer, depth int) {
	for _, blk := range m.blocks {
		b.WriteString(indent(blk, depth))
	}
	names := make([]string, 0, len(m.children))
	for n := range m.children {
		names = append(names, n)
	}
	sort.Strings(names)
	pad := strings.Repeat("    ", depth)
	for _, n := range names {
		b.WriteString(pad + "pub mod " + n + " {\n")
		m.children[n].write(b, depth+1)
		b.WriteString(pad + "}\n")
	}
}

func indent(text string, depth int) string {
	if depth == 0 {
		return text
	}
	pad := strings.Repeat("    ", depth)
	lines := strings.SplitAfter(text, "\n")
	var b strings.Builder
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			b.WriteString(pad)
		}
		b.WriteString(l)
	}
	return b.String()
}

func (e *Engine) render() ([]byte, error) {
	var types bytes.Buffer
	e.types.write(&types, 1)
	var generics bytes.Buffer
	for _, g := range e.generics {
		generics.WriteString(indent(g.text, 1))
	}
	var out bytes.Buffer
	if err := templates.ExecuteTemplate(&out, tmplFile, fileData{Types: types.String(), Generics: generics.String()}); err != nil {
		return nil, fmt.Errorf("render glue: %w", err)
	}
	return out.Bytes(), nil
}
