package db

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestRowWithAndGet(t *testing.T) {
	r := Row{}.With("b", 1).With("a", "x")
	r2 := r.With("b", 2)

	if v, _ := r.Get("b"); v != 1 {
		t.Errorf("With must not modify the receiver, got %v", v)
	}
	if v, _ := r2.Get("b"); v != 2 {
		t.Errorf("Expected replaced value 2, got %v", v)
	}
	if cols := r2.Columns(); len(cols) != 2 || cols[0] != "b" || cols[1] != "a" {
		t.Errorf("Expected replaced column to keep its position, got %v", cols)
	}
	if _, ok := r2.Get("missing"); ok {
		t.Errorf("Expected missing column to be absent")
	}
	if r2.Len() != 2 {
		t.Errorf("Expected length 2, got %d", r2.Len())
	}
}

func TestNewRowCopies(t *testing.T) {
	cols := []string{"a", "b", "c"}
	vals := []any{1, 2}

	r := NewRow(cols, vals)
	cols[0] = "changed"

	if r.Len() != 2 {
		t.Errorf("Expected surplus column to be dropped, got %d columns", r.Len())
	}
	if r.Columns()[0] != "a" {
		t.Errorf("NewRow must copy its input")
	}
}

func TestSameColumns(t *testing.T) {
	a := Row{}.With("x", 1).With("y", 2)
	b := Row{}.With("x", 3).With("y", 4)
	c := Row{}.With("y", 1).With("x", 2)

	if !SameColumns([]Row{a, b}) {
		t.Errorf("Expected rows with identical columns to match")
	}
	if SameColumns([]Row{a, c}) {
		t.Errorf("Expected different column order to mismatch")
	}
	if !SameColumns(nil) {
		t.Errorf("Expected empty input to match")
	}
}

func TestRowJSON(t *testing.T) {
	r := Row{}.With("z", int64(1)).With("a", []byte("text")).With("m", nil)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"z":1,"a":"text","m":null}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}

	var decoded Row
	if err := json.Unmarshal([]byte(`{"name":"bob","age":42,"score":1.5}`), &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cols := decoded.Columns(); len(cols) != 3 || cols[0] != "name" || cols[2] != "score" {
		t.Errorf("Expected key order to be kept, got %v", cols)
	}
	if v, _ := decoded.Get("age"); v != int64(42) {
		t.Errorf("Expected integer 42, got %#v", v)
	}
	if v, _ := decoded.Get("score"); v != 1.5 {
		t.Errorf("Expected float 1.5, got %#v", v)
	}

	if err := json.Unmarshal([]byte(`[1,2]`), &decoded); err == nil {
		t.Errorf("Expected error for non-object JSON")
	}
}

func TestRowJSONBinary(t *testing.T) {
	blob := []byte{0xff, 0x00, 0xfe}
	data, err := json.Marshal(Row{}.With("v", blob))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"v":"/wD+"}` {
		t.Errorf("Expected base64 encoded blob, got %s", data)
	}

	var decoded struct {
		V []byte `json:"v"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if string(decoded.V) != string(blob) {
		t.Errorf("Expected blob to survive the round trip, got %v", decoded.V)
	}
}
