package diag

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBagDedupAndSort(t *testing.T) {
	t.Parallel()

	b := NewBag()
	b.Addf(UnresolvedName, Location{File: "src/lib.rs", Line: 9}, "Foo", "falls back to an opaque pointer")
	b.Addf(UnsupportedConstruct, Location{File: "src/lib.rs", Line: 2}, "dyn A + B", "first bound used")
	b.Addf(UnresolvedName, Location{File: "src/lib.rs", Line: 9}, "Foo", "falls back to an opaque pointer")
	b.Addf(StructuralCycle, Location{File: "src/a.rs", Line: 40}, "Node", "broken")

	require.Equal(t, 3, b.Len())
	got := b.Sorted()
	assert.Equal(t, "src/a.rs", got[0].Location.File)
	assert.Equal(t, 2, got[1].Location.Line)
	assert.Equal(t, 9, got[2].Location.Line)
	assert.False(t, b.HasFatal())
	assert.Equal(t, 1, b.Count(UnresolvedName))
}

func TestBagConcurrentAdd(t *testing.T) {
	t.Parallel()

	b := NewBag()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Addf(ParseFailure, Location{File: "f.rs", Line: i + 1}, "", "bad")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}

func TestFatalPromotesAndUnwraps(t *testing.T) {
	t.Parallel()

	b := NewBag()
	b.Addf(UnresolvedName, Location{}, "X", "opaque")
	b.Add(Diagnostic{Kind: ManglingCollision, Severity: Warning, Subject: "Vec_a_B", Message: "Vec<a::B> and Vec<a_B>"})
	require.True(t, b.HasFatal())

	err := Fatal(b, nil)
	assert.True(t, errors.Is(err, ErrManglingCollision))
	assert.Len(t, err.Diagnostics, 2)
	for _, d := range err.Diagnostics {
		if d.Kind == ManglingCollision {
			assert.Equal(t, Error, d.Severity)
		}
	}
	assert.Contains(t, err.Error(), "2 diagnostic(s)")
}

func TestReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, []Diagnostic{
		{Kind: UnresolvedName, Severity: Warning, Location: Location{File: "src/lib.rs", Line: 3}, Subject: "Foo", Message: "opaque"},
	}))
	out := buf.String()
	assert.Contains(t, out, "src/lib.rs:3")
	assert.Contains(t, out, "unresolved")
	assert.Contains(t, out, "1 warning(s)")

	buf.Reset()
	require.NoError(t, Report(&buf, nil))
	assert.Contains(t, buf.String(), "no diagnostics")
}

func TestLocationString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", Location{}.String())
	assert.Equal(t, "a.rs", Location{File: "a.rs"}.String())
	assert.Equal(t, "a.rs:1", Location{File: "a.rs", Line: 1}.String())
	assert.Equal(t, "a.rs:1:2", Location{File: "a.rs", Line: 1, Column: 2}.String())
}
