// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Report is what `ferment inspect` prints for one crate.
type Report struct {
	Crate         string
	Root          string
	Registrations []inventory.Entry
	Generics      []*mangle.Record
	Items         []string
	Functions     []string
	Diagnostics   []diag.Diagnostic
}

// Encode converts a Report into TOON format.
func Encode(r *Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("crate: %s", encodeValue(r.Crate)))
	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(r.Root)))

	var regRows [][]string
	for i := range r.Registrations {
		e := &r.Registrations[i]
		var ty, ffi string
		if e.Type != nil {
			ty = e.Type.String()
		}
		if e.FFI != nil {
			ffi = e.FFI.String()
		}
		regRows = append(regRows, []string{
			e.Marker.String(),
			e.Path.String(),
			ty,
			ffi,
			e.File,
			fmt.Sprintf("%d", e.Line),
		})
	}
	parts = append(parts, formatTabular("registrations", []string{"marker", "path", "type", "ffi", "file", "line"}, regRows))

	var genRows [][]string
	for _, rec := range r.Generics {
		var gate string
		if a, ok := rec.Cfg(); ok {
			gate = a.Args
		}
		genRows = append(genRows, []string{rec.Name, rec.Type.String(), gate})
	}
	parts = append(parts, formatTabular("generics", []string{"name", "type", "cfg"}, genRows))

	parts = append(parts, formatList("items", r.Items))
	parts = append(parts, formatList("functions", r.Functions))

	if len(r.Diagnostics) > 0 {
		var diagRows [][]string
		for i := range r.Diagnostics {
			d := &r.Diagnostics[i]
			diagRows = append(diagRows, []string{
				d.Severity.String(),
				d.Kind.String(),
				d.Location.String(),
				d.Subject,
				d.Message,
			})
		}
		parts = append(parts, formatTabular("diagnostics", []string{"severity", "kind", "location", "subject", "message"}, diagRows))
	}

	return strings.Join(parts, "\n")
}

func formatList(name string, values []string) string {
	if len(values) == 0 {
		return fmt.Sprintf("%s[0]:", name)
	}
	encoded := make([]string, len(values))
	for i, v := range values {
		encoded[i] = encodeValue(v)
	}
	return fmt.Sprintf("%s[%d]: %s", name, len(values), strings.Join(encoded, ","))
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
