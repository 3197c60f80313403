// Package diag collects engine diagnostics and renders the user-facing report.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind classifies a diagnostic.
type Kind int

const (
	UnresolvedName Kind = iota
	UnsupportedConstruct
	ManglingCollision
	StructuralCycle
	RegistrationConflict
	IOFailure
	ParseFailure
)

var kindNames = [...]string{"unresolved", "unsupported", "collision", "cycle", "conflict", "io", "parse"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Fatal reports kinds that abort emission.
func (k Kind) Fatal() bool {
	switch k {
	case ManglingCollision, RegistrationConflict, IOFailure:
		return true
	}
	return false
}

// Sentinel errors wrapped by FatalError.
var (
	ErrManglingCollision    = errors.New("mangling collision")
	ErrRegistrationConflict = errors.New("registration conflict")
	ErrIO                   = errors.New("i/o failure")
	ErrUnresolved           = errors.New("unresolved names")
)

// Sentinel returns the error a fatal diagnostic of kind k unwraps to.
func (k Kind) Sentinel() error {
	switch k {
	case ManglingCollision:
		return ErrManglingCollision
	case RegistrationConflict:
		return ErrRegistrationConflict
	case IOFailure:
		return ErrIO
	case UnresolvedName:
		return ErrUnresolved
	}
	return nil
}

// Severity of a diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "info"
}

// Location is a source position. Line and Column are 1-based; zero means
// unknown.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	switch {
	case l.File == "":
		return "-"
	case l.Line == 0:
		return l.File
	case l.Column == 0:
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

func (l Location) less(o Location) bool {
	if l.File != o.File {
		return l.File < o.File
	}
	if l.Line != o.Line {
		return l.Line < o.Line
	}
	return l.Column < o.Column
}

// Diagnostic is one recorded problem.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Location Location
	Subject  string
	Message  string
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Location.String())
	b.WriteString(": ")
	b.WriteString(d.Severity.String())
	b.WriteString(" [")
	b.WriteString(d.Kind.String())
	b.WriteString("] ")
	if d.Subject != "" {
		b.WriteString(d.Subject)
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	return b.String()
}

func (d Diagnostic) key() string {
	return d.Kind.String() + "|" + d.Location.String() + "|" + d.Subject + "|" + d.Message
}

// Bag accumulates diagnostics. It is safe for concurrent use; identical
// diagnostics are recorded once.
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
	seen  map[string]struct{}
}

// NewBag creates an empty bag.
func NewBag() *Bag {
	return &Bag{seen: make(map[string]struct{})}
}

// Add records d unless an identical diagnostic exists. Fatal kinds are
// promoted to Error severity.
func (b *Bag) Add(d Diagnostic) {
	if d.Kind.Fatal() {
		d.Severity = Error
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen == nil {
		b.seen = make(map[string]struct{})
	}
	k := d.key()
	if _, dup := b.seen[k]; dup {
		return
	}
	b.seen[k] = struct{}{}
	b.items = append(b.items, d)
}

// Addf records a warning of kind k.
func (b *Bag) Addf(k Kind, loc Location, subject, format string, args ...any) {
	b.Add(Diagnostic{Kind: k, Severity: Warning, Location: loc, Subject: subject, Message: fmt.Sprintf(format, args...)})
}

// Len returns the number of recorded diagnostics.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// HasFatal reports whether any fatal diagnostic was recorded.
func (b *Bag) HasFatal() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.items {
		if d.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics of kind k.
func (b *Bag) Count(k Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, d := range b.items {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Sorted returns a copy ordered by location, then kind and message.
func (b *Bag) Sorted() []Diagnostic {
	b.mu.Lock()
	out := make([]Diagnostic, len(b.items))
	copy(out, b.items)
	b.mu.Unlock()
	Sort(out)
	return out
}

// Sort orders diagnostics by location, then kind and message.
func Sort(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Location != ds[j].Location {
			return ds[i].Location.less(ds[j].Location)
		}
		if ds[i].Kind != ds[j].Kind {
			return ds[i].Kind < ds[j].Kind
		}
		if ds[i].Subject != ds[j].Subject {
			return ds[i].Subject < ds[j].Subject
		}
		return ds[i].Message < ds[j].Message
	})
}

// FatalError aborts a run. It carries every diagnostic recorded so far and
// unwraps to the sentinel of its first fatal diagnostic.
type FatalError struct {
	Diagnostics []Diagnostic
	Err         error
}

// Fatal builds a FatalError from the bag's current contents.
func Fatal(b *Bag, err error) *FatalError {
	ds := b.Sorted()
	if err == nil {
		for _, d := range ds {
			if d.Kind.Fatal() {
				err = fmt.Errorf("%w: %s", d.Kind.Sentinel(), d.Message)
				break
			}
		}
	}
	if err == nil {
		err = errors.New("emission aborted")
	}
	return &FatalError{Diagnostics: ds, Err: err}
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%v (%d diagnostic(s))", e.Err, len(e.Diagnostics))
}

func (e *FatalError) Unwrap() error { return e.Err }
