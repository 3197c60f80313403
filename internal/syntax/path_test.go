package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPath(t *testing.T, s string) Path {
	t.Helper()
	p, err := ParsePath(s)
	require.NoError(t, err)
	return p
}

func TestPathPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path  string
		check func(Path) bool
		want  bool
		label string
	}{
		{"u8", Path.IsPrimitive, true, "primitive"},
		{"std::string::String", Path.IsString, true, "string"},
		{"str", Path.IsString, true, "str"},
		{"std::collections::BTreeMap<K, V>", Path.IsSpecialGeneric, true, "map special"},
		{"std::collections::BTreeMap<K, V>", Path.IsMap, true, "map"},
		{"Option<u8>", Path.IsSpecialGeneric, false, "option not special"},
		{"Option<u8>", Path.IsOptional, true, "option"},
		{"i128", Path.Is128Digit, true, "i128"},
		{"u64", Path.Is128Digit, false, "u64"},
		{"std::ffi::c_void", Path.IsVoid, true, "void"},
		{"std::sync::Arc<T>", Path.IsSmartPointer, true, "arc"},
		{"std::pin::Pin<Box<T>>", Path.IsSmartPointer, true, "pin"},
		{"crate::model::User", Path.IsCrateRelative, true, "crate"},
		{"super::User", Path.IsCrateRelative, true, "super"},
		{"core::fmt::Debug", Path.IsStd, true, "core"},
		{"model::User", Path.IsStd, false, "user"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.check(mustPath(t, tt.path)))
		})
	}
}

func TestPathManipulation(t *testing.T) {
	t.Parallel()

	p := mustPath(t, "crate::model::Wrapper<'a, Vec<u8>>")
	assert.Equal(t, "Wrapper", p.LastIdent())
	assert.Equal(t, "crate", p.FirstIdent())
	assert.Equal(t, "crate::model::Wrapper", p.ArgLess().String())
	assert.Equal(t, "crate::model::Wrapper<'a, Vec<u8>>", p.String(), "ArgLess must not mutate")
	assert.Equal(t, "crate::model::Wrapper<Vec<u8>>", p.Key())
	assert.Equal(t, "crate::model", p.Parent().String())
	assert.Equal(t, []string{"crate", "model", "Wrapper"}, p.Idents())

	joined := NewPath("crate", "model").Join(mustPath(t, "user::User<T>"))
	assert.Equal(t, "crate::model::user::User<T>", joined.String())
	assert.True(t, joined.Equal(mustPath(t, "crate::model::user::User<T>")))
	assert.False(t, joined.Equal(mustPath(t, "crate::model::user::User<U>")))
}

func TestAttributesMergeAndCfg(t *testing.T) {
	t.Parallel()

	parse := func(s string) Attribute {
		a, err := ParseAttribute(s)
		require.NoError(t, err)
		return a
	}

	a := Attributes{parse(`#[cfg(feature = "a")]`), parse("#[derive(Clone)]")}
	b := Attributes{parse(`#[cfg(feature  =  "a")]`), parse(`#[cfg(test)]`)}

	merged := a.Merge(b)
	require.Len(t, merged, 3)
	assert.Equal(t, []string{`feature = "a"`, "test"}, merged.CfgPredicates())
	assert.Len(t, merged.Cfg(), 2)
	assert.True(t, merged.Has("derive"))
	assert.Equal(t, "Clone", func() string { d, _ := merged.Find("derive"); return d.Args }())
}
