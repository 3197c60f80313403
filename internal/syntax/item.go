package syntax

// ItemKind discriminates syntactic items.
type ItemKind int

const (
	ModItem ItemKind = iota
	StructItem
	EnumItem
	TraitItem
	ImplItem
	FnItem
	TypeAliasItem
	UseItem
	AssocTypeItem
	ConstItem
)

var itemKindNames = [...]string{"mod", "struct", "enum", "trait", "impl", "fn", "type", "use", "assoc_type", "const"}

func (k ItemKind) String() string {
	if int(k) < len(itemKindNames) {
		return itemKindNames[k]
	}
	return "unknown"
}

// File is one parsed source file.
type File struct {
	Path  string
	Attrs Attributes
	Items []*Item
}

// Item is a module-level or nested declaration.
type Item struct {
	Kind     ItemKind
	Name     string
	Public   bool
	Attrs    Attributes
	Generics Generics
	File     string
	Line     int

	// Struct, enum variant payloads.
	Fields []Field
	Tuple  bool
	Unit   bool

	Variants []Variant

	// Trait supertraits, associated type bounds.
	Bounds []Bound

	// Body of a trait, impl, inline or loaded mod, or items declared inside
	// a fn body.
	Items []*Item

	// Mod: the body was declared inline or loaded from its own file.
	Inline bool
	Loaded bool

	// Impl
	Trait    *Path
	SelfType *Type
	Negative bool

	Sig *Signature

	// Alias target, associated type default, const type.
	Type *Type

	Use *UseTree
}

// Field is a named or positional struct field.
type Field struct {
	Name   string
	Type   *Type
	Attrs  Attributes
	Public bool
	Line   int
}

// Variant is an enum variant.
type Variant struct {
	Name         string
	Attrs        Attributes
	Fields       []Field
	Tuple        bool
	Unit         bool
	Discriminant string
	Line         int
}

// GenericParam is a lifetime, type or const parameter.
type GenericParam struct {
	Name     string
	Lifetime bool
	Const    bool
	Type     *Type
	Bounds   []Bound
	Default  *Type
}

// WherePredicate is one where-clause entry.
type WherePredicate struct {
	Lifetime string
	Type     *Type
	Bounds   []Bound
}

// Generics collects an item's parameters and where clause.
type Generics struct {
	Params []GenericParam
	Where  []WherePredicate
}

// TypeParams returns the non-lifetime parameters.
func (g Generics) TypeParams() []GenericParam {
	var out []GenericParam
	for _, p := range g.Params {
		if !p.Lifetime {
			out = append(out, p)
		}
	}
	return out
}

// IsEmpty reports whether the item has no type or const parameters.
func (g Generics) IsEmpty() bool { return len(g.TypeParams()) == 0 }

// Param returns the named non-lifetime parameter.
func (g Generics) Param(name string) (GenericParam, bool) {
	for _, p := range g.Params {
		if !p.Lifetime && p.Name == name {
			return p, true
		}
	}
	return GenericParam{}, false
}

// BoundsFor merges inline and where-clause bounds of a parameter.
func (g Generics) BoundsFor(name string) []Bound {
	var out []Bound
	if p, ok := g.Param(name); ok {
		out = append(out, p.Bounds...)
	}
	for _, w := range g.Where {
		if w.Type != nil && w.Type.Kind == PathType && w.Type.QSelf == nil &&
			len(w.Type.Path.Segments) == 1 && w.Type.Path.LastIdent() == name {
			out = append(out, w.Bounds...)
		}
	}
	return out
}

// Receiver is a method's self parameter.
type Receiver struct {
	Ref      bool
	Mutable  bool
	Lifetime string
	Type     *Type
}

// Param is a fn parameter.
type Param struct {
	Name  string
	Type  *Type
	Attrs Attributes
}

// Signature is the header of a fn item or trait method.
type Signature struct {
	Name     string
	Async    bool
	Unsafe   bool
	Const    bool
	Abi      string
	Generics Generics
	Receiver *Receiver
	Params   []Param
	Output   *Type
	HasBody  bool
}

// UseKind discriminates use-tree leaves.
type UseKind int

const (
	UseName UseKind = iota
	UseRename
	UseGlob
	UseGroup
)

// UseTree is a parsed `use` argument. Prefix holds the leading segments.
type UseTree struct {
	Global bool
	Prefix []string
	Kind   UseKind
	Name   string
	Rename string
	Items  []*UseTree
}

// UseEntry is one expanded import.
type UseEntry struct {
	Name string
	Path Path
	Glob bool
}

// Expand flattens the tree into local-name to path entries. Glob entries
// carry the target module path and an empty name. Renames to `_` are
// dropped since they bind nothing nameable.
func (u *UseTree) Expand() []UseEntry {
	var out []UseEntry
	u.expand(Path{Global: u.Global}, &out)
	return out
}

func (u *UseTree) expand(base Path, out *[]UseEntry) {
	prefix := base.Append(u.Prefix...)
	switch u.Kind {
	case UseGlob:
		*out = append(*out, UseEntry{Path: prefix, Glob: true})
	case UseGroup:
		for _, child := range u.Items {
			child.expand(prefix, out)
		}
	case UseName:
		if u.Name == "self" {
			if len(prefix.Segments) > 0 {
				*out = append(*out, UseEntry{Name: prefix.LastIdent(), Path: prefix})
			}
			return
		}
		*out = append(*out, UseEntry{Name: u.Name, Path: prefix.Append(u.Name)})
	case UseRename:
		if u.Rename == "_" {
			return
		}
		target := prefix.Append(u.Name)
		if u.Name == "self" {
			target = prefix
		}
		*out = append(*out, UseEntry{Name: u.Rename, Path: target})
	}
}
