package model

var smartPointerIdents = map[string]SmartPointer{
	"Box": BoxPtr, "Arc": ArcPtr, "Rc": RcPtr, "Cow": CowPtr, "Cell": CellPtr,
	"RefCell": RefCellPtr, "Mutex": MutexPtr, "RwLock": RwLockPtr,
	"OnceLock": OnceLockPtr, "UnsafeCell": UnsafeCellPtr, "Pin": PinPtr,
}

var groupIdents = map[string]Group{
	"Vec": VecGroup, "BTreeSet": BTreeSetGroup, "HashSet": HashSetGroup, "IndexSet": IndexSetGroup,
	"BTreeMap": MapGroup, "HashMap": MapGroup, "IndexMap": MapGroup, "Result": ResultGroup,
}

var primitiveIdents = map[string]bool{
	"i8": true, "i16": true, "i32": true, "i64": true, "isize": true,
	"u8": true, "u16": true, "u32": true, "u64": true, "usize": true,
	"f32": true, "f64": true, "bool": true, "char": true,
}

// MarkerTraits are bounds that carry no structure across the boundary.
var MarkerTraits = map[string]bool{
	"Send": true, "Sync": true, "Sized": true, "Unpin": true, "Copy": true, "Clone": true,
	"Debug": true, "Display": true, "Default": true, "Eq": true, "PartialEq": true,
	"Ord": true, "PartialOrd": true, "Hash": true, "Any": true, "Error": true,
	"UnwindSafe": true, "RefUnwindSafe": true, "ToString": true,
}

// IsMarkerTrait reports whether ident names a marker trait.
func IsMarkerTrait(ident string) bool { return MarkerTraits[ident] }

// Prelude lists built-ins that resolve without an import. They keep their
// bare name, so Vec<u32> mangles to Vec_u32.
var Prelude = map[string]bool{
	"Vec": true, "Option": true, "Result": true, "Box": true, "String": true, "str": true,
	"i128": true, "u128": true,
}

// Builtin classifies an identifier against the built-in dictionary.
func Builtin(ident string) (TypeModelKind, bool) {
	switch {
	case primitiveIdents[ident]:
		return TypeModelKind{Tag: Dictionary, Dict: DictPrimitive}, true
	case ident == "String":
		return TypeModelKind{Tag: Dictionary, Dict: DictFermentable, Ferm: FermString}, true
	case ident == "str":
		return TypeModelKind{Tag: Dictionary, Dict: DictFermentable, Ferm: FermStr}, true
	case ident == "i128" || ident == "u128":
		return TypeModelKind{Tag: Dictionary, Dict: DictFermentable, Ferm: Ferm128}, true
	case ident == "Option":
		return TypeModelKind{Tag: Optional}, true
	case ident == "Fn" || ident == "FnMut" || ident == "FnOnce":
		return TypeModelKind{Tag: Dictionary, Dict: DictLambdaFn}, true
	case MarkerTraits[ident] || ident == "c_void":
		return TypeModelKind{Tag: Dictionary, Dict: DictOpaque}, true
	}
	if sp, ok := smartPointerIdents[ident]; ok {
		return TypeModelKind{Tag: Dictionary, Dict: DictFermentable, Ferm: FermSmartPointer, Pointer: sp}, true
	}
	if g, ok := groupIdents[ident]; ok {
		return TypeModelKind{Tag: Dictionary, Dict: DictFermentable, Ferm: FermGroup, Group: g}, true
	}
	return TypeModelKind{}, false
}
