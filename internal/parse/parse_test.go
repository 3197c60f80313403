package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankcuf/ferment-sub004/internal/diag"
	"github.com/pankcuf/ferment-sub004/internal/lang"
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

const modelSource = `#![allow(dead_code)]
use std::collections::BTreeMap;
use crate::error::{ProtocolError, Code as ErrorCode};

/// A user record.
#[derive(Clone)]
#[ferment_macro::export]
pub struct User<'a> {
    pub id: u32,
    #[cfg(feature = "names")]
    pub name: &'a str,
    pub tags: BTreeMap<String, Vec<Option<u8>>>,
}

#[ferment_macro::export]
pub struct Hash(pub [u8; 32], u64);

pub struct Marker;

#[ferment_macro::export]
pub enum Status {
    Active = 1,
    Pending(String),
    Failed { code: ErrorCode, reason: Option<String> },
}

#[ferment_macro::export]
pub trait Greeter: Named + Send {
    type Output;
    fn greet(&self, name: &str) -> String;
    fn reset(&mut self);
}

#[ferment_macro::export]
impl User<'_> {
    pub fn new(id: u32) -> Self { todo!() }
    pub async fn fetch(&self) -> Result<u32, ProtocolError> { todo!() }
}

impl<T: Clone> Greeter for Wrapper<T> where T: Send {
    type Output = ();
    fn greet(&self, name: &str) -> String { name.to_string() }
    fn reset(&mut self) {}
}

pub type Id = [u8; 32];

pub mod inner {
    pub fn helper(cb: unsafe extern "C" fn(u32) -> u32) {
        struct Local { x: u8 }
    }
}

mod outer;
`

func parseSource(t *testing.T, src string) (*syntax.File, *diag.Bag) {
	t.Helper()
	bag := diag.NewBag()
	p := lang.NewParser()
	f, err := File(context.Background(), p, []byte(src), "src/model.rs", bag)
	require.NoError(t, err)
	return f, bag
}

func byName(items []*syntax.Item, kind syntax.ItemKind, name string) *syntax.Item {
	for _, it := range items {
		if it.Kind == kind && it.Name == name {
			return it
		}
	}
	return nil
}

func TestFileItems(t *testing.T) {
	t.Parallel()

	f, bag := parseSource(t, modelSource)
	assert.Equal(t, 0, bag.Len(), "%v", bag.Sorted())
	require.Len(t, f.Attrs, 1)
	assert.Equal(t, "allow", f.Attrs[0].Path)

	var uses []string
	for _, it := range f.Items {
		if it.Kind == syntax.UseItem {
			for _, e := range it.Use.Expand() {
				uses = append(uses, e.Name+"="+e.Path.String())
			}
		}
	}
	assert.Equal(t, []string{
		"BTreeMap=std::collections::BTreeMap",
		"ProtocolError=crate::error::ProtocolError",
		"ErrorCode=crate::error::Code",
	}, uses)

	user := byName(f.Items, syntax.StructItem, "User")
	require.NotNil(t, user)
	assert.True(t, user.Public)
	assert.True(t, user.Attrs.Has("ferment_macro::export"))
	assert.True(t, user.Attrs.Has("derive"))
	require.Len(t, user.Fields, 3)
	assert.Equal(t, "&'a str", user.Fields[1].Type.String())
	assert.Equal(t, []string{`feature = "names"`}, user.Fields[1].Attrs.CfgPredicates())
	assert.Equal(t, "BTreeMap<String, Vec<Option<u8>>>", user.Fields[2].Type.String())
	assert.Equal(t, 8, user.Line)

	hash := byName(f.Items, syntax.StructItem, "Hash")
	require.NotNil(t, hash)
	assert.True(t, hash.Tuple)
	require.Len(t, hash.Fields, 2)
	assert.Equal(t, "0", hash.Fields[0].Name)
	assert.True(t, hash.Fields[0].Public)
	assert.False(t, hash.Fields[1].Public)
	assert.Equal(t, "[u8; 32]", hash.Fields[0].Type.String())

	assert.True(t, byName(f.Items, syntax.StructItem, "Marker").Unit)
}

func TestEnumAndTrait(t *testing.T) {
	t.Parallel()

	f, _ := parseSource(t, modelSource)

	status := byName(f.Items, syntax.EnumItem, "Status")
	require.NotNil(t, status)
	require.Len(t, status.Variants, 3)
	assert.True(t, status.Variants[0].Unit)
	assert.Equal(t, "1", status.Variants[0].Discriminant)
	assert.True(t, status.Variants[1].Tuple)
	assert.Equal(t, "reason", status.Variants[2].Fields[1].Name)

	greeter := byName(f.Items, syntax.TraitItem, "Greeter")
	require.NotNil(t, greeter)
	require.Len(t, greeter.Bounds, 2)
	require.Len(t, greeter.Items, 3)
	assert.Equal(t, syntax.AssocTypeItem, greeter.Items[0].Kind)
	greet := greeter.Items[1].Sig
	require.NotNil(t, greet.Receiver)
	assert.True(t, greet.Receiver.Ref)
	assert.False(t, greet.Receiver.Mutable)
	assert.False(t, greet.HasBody)
	require.Len(t, greet.Params, 1)
	assert.Equal(t, "name", greet.Params[0].Name)
	assert.True(t, greeter.Items[2].Sig.Receiver.Mutable)
	assert.Nil(t, greeter.Items[2].Sig.Output)
}

func TestImplsAndFns(t *testing.T) {
	t.Parallel()

	f, _ := parseSource(t, modelSource)

	var inherent, traitImpl *syntax.Item
	for _, it := range f.Items {
		if it.Kind != syntax.ImplItem {
			continue
		}
		if it.Trait == nil {
			inherent = it
		} else {
			traitImpl = it
		}
	}
	require.NotNil(t, inherent)
	assert.Equal(t, "User<'_>", inherent.SelfType.String())
	require.Len(t, inherent.Items, 2)
	assert.Equal(t, "Self", inherent.Items[0].Sig.Output.String())
	assert.True(t, inherent.Items[1].Sig.Async)

	require.NotNil(t, traitImpl)
	assert.Equal(t, "Greeter", traitImpl.Trait.String())
	assert.Len(t, traitImpl.Generics.BoundsFor("T"), 2)
	output := byName(traitImpl.Items, syntax.AssocTypeItem, "Output")
	require.NotNil(t, output, "impl-body type binds an associated type")
	assert.Equal(t, "()", output.Type.String())

	alias := byName(f.Items, syntax.TypeAliasItem, "Id")
	require.NotNil(t, alias)
	assert.Equal(t, "[u8; 32]", alias.Type.String())

	inner := byName(f.Items, syntax.ModItem, "inner")
	require.NotNil(t, inner)
	assert.True(t, inner.Inline)
	helper := byName(inner.Items, syntax.FnItem, "helper")
	require.NotNil(t, helper)
	assert.Equal(t, `unsafe extern "C" fn(u32) -> u32`, helper.Sig.Params[0].Type.String())
	require.Len(t, helper.Items, 1)
	assert.Equal(t, "Local", helper.Items[0].Name)

	outer := byName(f.Items, syntax.ModItem, "outer")
	require.NotNil(t, outer)
	assert.False(t, outer.Inline)
}

func TestFileRecordsUnparseableTypes(t *testing.T) {
	t.Parallel()

	f, bag := parseSource(t, "pub struct S { pub f: ty_macro!(u8), pub g: u8 }\n")
	require.Len(t, f.Items, 1)
	assert.Equal(t, 1, bag.Count(diag.ParseFailure))
	require.Len(t, f.Items[0].Fields, 2)
	assert.Equal(t, syntax.InferType, f.Items[0].Fields[0].Type.Kind)
	assert.Equal(t, "u8", f.Items[0].Fields[1].Type.String())
}

func TestEmptyFile(t *testing.T) {
	t.Parallel()

	f, _ := parseSource(t, "")
	assert.Empty(t, f.Items)
}
