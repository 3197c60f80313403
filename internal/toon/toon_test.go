package toon

import (
	"strings"
	"testing"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/inventory"
	"github.com/pankcuf/ferment-sub004/internal/mangle"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"mangled", "Vec_u32", "Vec_u32"},
		{"generic type", "Vec<u32>", "Vec<u32>"},
		{"file", "src/lib.rs", "src/lib.rs"},
		{"line", "12", "12"},
		{"rust path", "crate::model::User", `"crate::model::User"`},
		{"map type", "BTreeMap<String, u32>", `"BTreeMap<String, u32>"`},
		{"cfg", `feature = "extra"`, `"feature = \"extra\""`},
		{"padded", " u32", `" u32"`},
		{"message", "unresolved\nname", `"unresolved\nname"`},
		{"keyword", "true", `"true"`},
		{"marker", "-custom", `"-custom"`},
		{"array type", "[u8; 32]", `"[u8; 32]"`},
		{"trait object", "dyn Fn(u32) -> bool", "dyn Fn(u32) -> bool"},
		{"backslash", `a\b`, `"a\\b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	reg := mangle.NewRegistry()
	if _, err := reg.Add(syntax.MustParseType("Vec<u32>"), nil); err != nil {
		t.Fatal(err)
	}
	gated, err := syntax.ParseAttribute(`#[cfg(feature = "extra")]`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Add(syntax.MustParseType("Vec<bool>"), syntax.Attributes{gated}); err != nil {
		t.Fatal(err)
	}

	r := &Report{
		Crate: "example",
		Root:  "example",
		Registrations: []inventory.Entry{
			{Marker: inventory.Export, Path: syntax.NewPath("example", "User"), File: "src/lib.rs", Line: 3},
		},
		Generics:  reg.Sorted(),
		Items:     []string{"example_User"},
		Functions: []string{"example_users_count", "example_shared"},
	}

	got := Encode(r)

	lines := strings.Split(got, "\n")
	want := []string{
		"crate: example",
		"root: example",
		"registrations[1]{marker,path,type,ffi,file,line}:",
		`  export,"example::User","","",src/lib.rs,3`,
		"generics[2]{name,type,cfg}:",
		`  Vec_bool,Vec<bool>,"feature = \"extra\""`,
		"  Vec_u32,Vec<u32>,\"\"",
		"items[1]: example_User",
		"functions[2]: example_users_count,example_shared",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), got)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestEncodeDiagnostics(t *testing.T) {
	t.Parallel()

	r := &Report{
		Crate: "example",
		Root:  "/src/example",
		Diagnostics: []diag.Diagnostic{{
			Kind:     diag.UnsupportedConstruct,
			Severity: diag.Warning,
			Location: diag.Location{File: "src/lib.rs", Line: 7},
			Subject:  "example::later",
			Message:  "async fn cannot be exported",
		}},
	}

	got := Encode(r)
	if !strings.Contains(got, "diagnostics[1]{severity,kind,location,subject,message}:") {
		t.Errorf("expected diagnostics section, got:\n%s", got)
	}
	if !strings.Contains(got, `  warning,unsupported,"src/lib.rs:7","example::later",async fn cannot be exported`) {
		t.Errorf("expected diagnostic row, got:\n%s", got)
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode(&Report{Crate: "empty", Root: "empty"})
	if !strings.Contains(got, "registrations[0]{marker,path,type,ffi,file,line}:") {
		t.Errorf("expected empty registrations section, got:\n%s", got)
	}
	if !strings.Contains(got, "generics[0]{name,type,cfg}:") {
		t.Errorf("expected empty generics section, got:\n%s", got)
	}
	if !strings.Contains(got, "items[0]:") {
		t.Errorf("expected empty items list, got:\n%s", got)
	}
	if strings.Contains(got, "diagnostics") {
		t.Errorf("diagnostics section without diagnostics:\n%s", got)
	}
}
