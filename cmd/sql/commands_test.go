package sql

import (
	"testing"
)

func TestParseRows(t *testing.T) {
	rows, err := parseRows([]string{`{"name":"a","qty":2}`, `{"name":"b","qty":1.5}`})
	if err != nil {
		t.Fatalf("parseRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if cols := rows[0].Columns(); len(cols) != 2 || cols[0] != "name" || cols[1] != "qty" {
		t.Errorf("Expected column order to be kept, got %v", cols)
	}
	if v, _ := rows[0].Get("qty"); v != int64(2) {
		t.Errorf("Expected integer qty, got %T %v", v, v)
	}
	if v, _ := rows[1].Get("qty"); v != 1.5 {
		t.Errorf("Expected float qty, got %T %v", v, v)
	}

	if _, err := parseRows([]string{`[1,2]`}); err == nil {
		t.Errorf("Expected an error for an array of non-objects")
	}
	if _, err := parseRows([]string{` [] `}); err == nil {
		t.Errorf("Expected an error for an empty array")
	}
}

func TestParseRowsArray(t *testing.T) {
	rows, err := parseRows([]string{`[{"name":"a"},{"name":"b"}]`, `{"name":"c"}`})
	if err != nil {
		t.Fatalf("parseRows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if v, _ := rows[i].Get("name"); v != want {
			t.Errorf("Row %d: expected name %q, got %v", i, want, v)
		}
	}
}

func TestToArgs(t *testing.T) {
	args := toArgs([]string{"a", "1"})
	if len(args) != 2 || args[0] != "a" || args[1] != "1" {
		t.Errorf("Unexpected args %v", args)
	}
}
