package snquery

import (
	"slices"
	"testing"
)

func TestTable_AddRow_WrongArity(t *testing.T) {
	table := NewTable("a", "b")
	if err := table.AddRow(1.0); err == nil {
		t.Fatal("expected error for wrong value count")
	}
}

func TestTable_FloatsAndStrings(t *testing.T) {
	table := NewTable("flux", "band")
	_ = table.AddRow(1.5, "B")
	_ = table.AddRow(2.5, "V")

	flux, err := table.Floats("flux")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(flux, []float64{1.5, 2.5}) {
		t.Errorf("got %v", flux)
	}

	bands, err := table.Strings("band")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(bands, []string{"B", "V"}) {
		t.Errorf("got %v", bands)
	}

	if _, err := table.Floats("band"); err == nil {
		t.Error("expected type error converting strings to floats")
	}
	if _, err := table.Floats("missing"); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestTable_CopyIsIndependent(t *testing.T) {
	orig := NewTable("x")
	_ = orig.AddRow(1.0)
	orig.Meta["k"] = "v"

	dup := orig.Copy()
	_ = dup.AddRow(2.0)
	dup.Meta["k"] = "changed"

	if orig.NumRows() != 1 {
		t.Errorf("copy mutated original rows: %d", orig.NumRows())
	}
	if orig.Meta["k"] != "v" {
		t.Errorf("copy mutated original meta: %v", orig.Meta["k"])
	}
}

func TestVstack_UnionsColumns(t *testing.T) {
	first := NewTable("time", "flux")
	_ = first.AddRow(1.0, 10.0)
	second := NewTable("time", "wavelength")
	_ = second.AddRow(2.0, 4000.0)

	out := Vstack(first, second)
	if out.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.NumRows())
	}
	for _, name := range []string{"time", "flux", "wavelength"} {
		if !out.HasColumn(name) {
			t.Fatalf("missing column %q in %v", name, out.ColumnNames())
		}
	}
	// Columns absent from a member are nil-filled for its rows.
	if out.Column("flux")[1] != nil {
		t.Errorf("expected nil fill, got %v", out.Column("flux")[1])
	}
	if out.Column("wavelength")[0] != nil {
		t.Errorf("expected nil fill, got %v", out.Column("wavelength")[0])
	}
}

func TestSortTableIDs(t *testing.T) {
	ids := []TableID{NamedTable("b"), NumberedTable(10), NamedTable("a"), NumberedTable(2)}
	SortTableIDs(ids)
	want := []TableID{NumberedTable(2), NumberedTable(10), NamedTable("a"), NamedTable("b")}
	if !slices.Equal(ids, want) {
		t.Errorf("got %v, want %v", ids, want)
	}
}

func TestRawID_String(t *testing.T) {
	id := RawID{ObjID: "2004ef", Release: "DR3", Survey: "CSP"}
	if got := id.String(); got != "(2004ef, DR3, CSP)" {
		t.Errorf("got %q", got)
	}
}
