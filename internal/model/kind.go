package model

import (
	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Tag is the top-level classification of a type.
type Tag int

const (
	Unknown Tag = iota
	Dictionary
	Optional
	Array
	Slice
	Tuple
	FnPointer
	Trait
	TraitType
	Object
	Bounds
)

var tagNames = [...]string{"Unknown", "Dictionary", "Optional", "Array", "Slice", "Tuple", "FnPointer", "Trait", "TraitType", "Object", "Bounds"}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "Invalid"
}

// DictKind splits built-in concrete types.
type DictKind int

const (
	DictPrimitive DictKind = iota
	DictFermentable
	DictOpaque
	DictLambdaFn
)

var dictNames = [...]string{"Primitive", "NonPrimitiveFermentable", "NonPrimitiveOpaque", "LambdaFn"}

func (d DictKind) String() string { return dictNames[d] }

// FermKind splits fermentable built-ins.
type FermKind int

const (
	FermString FermKind = iota
	FermStr
	Ferm128
	FermSmartPointer
	FermGroup
)

var fermNames = [...]string{"String", "Str", "I128", "SmartPointer", "Group"}

func (f FermKind) String() string { return fermNames[f] }

// SmartPointer enumerates the pointer and cell family.
type SmartPointer int

const (
	BoxPtr SmartPointer = iota
	ArcPtr
	RcPtr
	CowPtr
	CellPtr
	RefCellPtr
	MutexPtr
	RwLockPtr
	OnceLockPtr
	UnsafeCellPtr
	PinPtr
)

var smartPointerNames = [...]string{"Box", "Arc", "Rc", "Cow", "Cell", "RefCell", "Mutex", "RwLock", "OnceLock", "UnsafeCell", "Pin"}

func (s SmartPointer) String() string { return smartPointerNames[s] }

// Group enumerates collection-like built-ins.
type Group int

const (
	VecGroup Group = iota
	BTreeSetGroup
	HashSetGroup
	IndexSetGroup
	MapGroup
	ResultGroup
)

var groupNames = [...]string{"Vec", "BTreeSet", "HashSet", "IndexSet", "Map", "Result"}

func (g Group) String() string { return groupNames[g] }

// RefMode records how a classified type was reached.
type RefMode int

const (
	ByValue RefMode = iota
	ByRef
	ByRefMut
	ByConstPtr
	ByMutPtr
)

var refModeNames = [...]string{"value", "&", "&mut", "*const", "*mut"}

func (r RefMode) String() string { return refModeNames[r] }

// IsRef reports a reference or pointer.
func (r RefMode) IsRef() bool { return r != ByValue }

// IsMut reports mutable access.
func (r RefMode) IsMut() bool { return r == ByRefMut || r == ByMutPtr }

// TypeModel is the type expression with its generics and resolved arguments.
type TypeModel struct {
	Type     *syntax.Type
	Generics *syntax.Generics
	Nested   []NestedArgument
}

// TypeModelKind is the classification result of a type expression.
// Dict, Ferm, Pointer and Group refine Dictionary; Ref is orthogonal.
type TypeModelKind struct {
	Tag     Tag
	Dict    DictKind
	Ferm    FermKind
	Pointer SmartPointer
	Group   Group
	Ref     RefMode
	Model   TypeModel
	Trait   *TraitModel
}

// Is reports the top-level tag.
func (k TypeModelKind) Is(tag Tag) bool { return k.Tag == tag }

// IsPrimitive reports Dictionary::Primitive.
func (k TypeModelKind) IsPrimitive() bool { return k.Tag == Dictionary && k.Dict == DictPrimitive }

// IsSmartPointer reports a fermentable smart pointer, optionally of a given variant.
func (k TypeModelKind) IsSmartPointer(variants ...SmartPointer) bool {
	if k.Tag != Dictionary || k.Dict != DictFermentable || k.Ferm != FermSmartPointer {
		return false
	}
	if len(variants) == 0 {
		return true
	}
	for _, v := range variants {
		if k.Pointer == v {
			return true
		}
	}
	return false
}

// IsGroup reports a fermentable group, optionally of a given variant.
func (k TypeModelKind) IsGroup(variants ...Group) bool {
	if k.Tag != Dictionary || k.Dict != DictFermentable || k.Ferm != FermGroup {
		return false
	}
	if len(variants) == 0 {
		return true
	}
	for _, v := range variants {
		if k.Group == v {
			return true
		}
	}
	return false
}

// IsString reports String or str.
func (k TypeModelKind) IsString() bool {
	return k.Tag == Dictionary && k.Dict == DictFermentable && (k.Ferm == FermString || k.Ferm == FermStr)
}

// Is128 reports i128 or u128.
func (k TypeModelKind) Is128() bool {
	return k.Tag == Dictionary && k.Dict == DictFermentable && k.Ferm == Ferm128
}

// IsLambda reports a boxed callable.
func (k TypeModelKind) IsLambda() bool { return k.Tag == Dictionary && k.Dict == DictLambdaFn }

// IsOpaqueBuiltin reports an unfermentable built-in.
func (k TypeModelKind) IsOpaqueBuiltin() bool { return k.Tag == Dictionary && k.Dict == DictOpaque }

// Nested returns the i-th nested argument's object, or an empty object.
func (k TypeModelKind) Nested(i int) ObjectKind {
	if i < len(k.Model.Nested) {
		return k.Model.Nested[i].Object
	}
	return ObjectKind{}
}

// String names the classification the way diagnostics print it.
func (k TypeModelKind) String() string {
	switch k.Tag {
	case Dictionary:
		switch k.Dict {
		case DictFermentable:
			switch k.Ferm {
			case FermSmartPointer:
				return "Dictionary::NonPrimitiveFermentable::SmartPointer::" + k.Pointer.String()
			case FermGroup:
				return "Dictionary::NonPrimitiveFermentable::Group::" + k.Group.String()
			}
			return "Dictionary::NonPrimitiveFermentable::" + k.Ferm.String()
		default:
			return "Dictionary::" + k.Dict.String()
		}
	}
	return k.Tag.String()
}

// TraitMethod is a trait method with its signature.
type TraitMethod struct {
	Name string
	Sig  *syntax.Signature
}

// TraitModel is a decomposed trait definition.
type TraitModel struct {
	Path        syntax.Path
	Methods     []TraitMethod
	AssocTypes  []string
	Supertraits []syntax.Path
	Item        *syntax.Item
}

// NewTraitModel decomposes a trait item declared at path.
func NewTraitModel(path syntax.Path, item *syntax.Item) *TraitModel {
	tm := &TraitModel{Path: path, Item: item}
	for _, b := range item.Bounds {
		if b.Lifetime == "" && !b.Maybe {
			tm.Supertraits = append(tm.Supertraits, b.Path)
		}
	}
	for _, it := range item.Items {
		switch it.Kind {
		case syntax.FnItem:
			tm.Methods = append(tm.Methods, TraitMethod{Name: it.Name, Sig: it.Sig})
		case syntax.AssocTypeItem:
			tm.AssocTypes = append(tm.AssocTypes, it.Name)
		}
	}
	return tm
}
