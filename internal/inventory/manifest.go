package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pankcuf/ferment-sub004/internal/syntax"
)

// Manifest lists registrations for types the crate cannot annotate.
//
//	registrations:
//	  - marker: custom
//	    type: platform_value::Value
//	    ffi: crate::ffi::Value
//	  - marker: opaque
//	    path: crate::model::Handle
type Manifest struct {
	Registrations []ManifestEntry `yaml:"registrations"`
}

// ManifestEntry is one manifest registration. Path names the item for
// export and opaque, and the converting wrapper for register.
type ManifestEntry struct {
	Marker string `yaml:"marker"`
	Path   string `yaml:"path,omitempty"`
	Type   string `yaml:"type,omitempty"`
	FFI    string `yaml:"ffi,omitempty"`
}

// LoadManifest reads a manifest file. A leading `crate` segment in any
// path or type is replaced by crateName.
func LoadManifest(path, crateName string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data, path, crateName)
}

// ParseManifest decodes manifest data. name is used as the entries' file.
func ParseManifest(data []byte, name, crateName string) ([]Entry, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", name, err)
	}
	out := make([]Entry, 0, len(m.Registrations))
	for i, r := range m.Registrations {
		e, err := r.entry(crateName)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: registration %d: %w", name, i+1, err)
		}
		e.File = name
		e.Line = i + 1
		out = append(out, e)
	}
	return out, nil
}

func (r ManifestEntry) entry(crateName string) (Entry, error) {
	m, err := ParseMarker(r.Marker)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Marker: m, Crate: crateName}
	if r.Path != "" {
		if e.Path, err = syntax.ParsePath(r.Path); err != nil {
			return Entry{}, fmt.Errorf("path: %w", err)
		}
		e.Path = rebase(e.Path, crateName)
	}
	if r.Type != "" {
		if e.Type, err = parseRebased(r.Type, crateName); err != nil {
			return Entry{}, fmt.Errorf("type: %w", err)
		}
	}
	if r.FFI != "" {
		if e.FFI, err = parseRebased(r.FFI, crateName); err != nil {
			return Entry{}, fmt.Errorf("ffi: %w", err)
		}
	}
	switch m {
	case Export, Opaque:
		if e.Path.IsEmpty() {
			return Entry{}, fmt.Errorf("%s needs a path", m)
		}
	case Register:
		if e.Type == nil || e.Path.IsEmpty() {
			return Entry{}, fmt.Errorf("register needs a type and a path")
		}
	case Custom:
		if e.Type == nil || e.FFI == nil {
			return Entry{}, fmt.Errorf("custom needs a type and an ffi type")
		}
	}
	return e, nil
}

func parseRebased(src, crateName string) (*syntax.Type, error) {
	ty, err := syntax.ParseType(src)
	if err != nil {
		return nil, err
	}
	if ty.Kind == syntax.PathType && ty.QSelf == nil {
		ty.Path = rebase(ty.Path, crateName)
	}
	return ty, nil
}

func rebase(p syntax.Path, crateName string) syntax.Path {
	if p.FirstIdent() != "crate" || crateName == "" {
		return p
	}
	out := p.Clone()
	out.Global = false
	out.Segments[0].Ident = crateName
	return out
}
