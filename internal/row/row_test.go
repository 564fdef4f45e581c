package row

import (
	"errors"
	"testing"

	"github.com/aalhour/tabletfuzz/internal/encoding"
)

func TestRowString(t *testing.T) {
	tests := []struct {
		row  Row
		want string
	}{
		{Row{Key: 1, Val: Null()}, "int32 key=1, int32 val=NULL"},
		{Row{Key: 1, Val: Int(2)}, "int32 key=1, int32 val=2"},
		{Row{Key: -7, Val: Int(-2147483648)}, "int32 key=-7, int32 val=-2147483648"},
	}
	for _, tt := range tests {
		if got := tt.row.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestBracketed(t *testing.T) {
	if got := Bracketed(nil); got != "()" {
		t.Errorf("Bracketed(nil) = %q, want ()", got)
	}
	got := Bracketed([]Row{{Key: 1, Val: Int(4)}})
	if got != "(int32 key=1, int32 val=4)" {
		t.Errorf("Bracketed = %q", got)
	}
}

func TestSchema(t *testing.T) {
	s := DefaultSchema()
	if err := s.Validate(); err != nil {
		t.Fatalf("default schema invalid: %v", err)
	}
	if got := s.String(); got != "(int32 key PRIMARY KEY, int32 val NULLABLE)" {
		t.Errorf("String() = %q", got)
	}

	bad := DefaultSchema()
	bad.Columns[0].Nullable = true
	if err := bad.Validate(); err == nil {
		t.Error("nullable key should be rejected")
	}
	if err := (Schema{}).Validate(); err == nil {
		t.Error("empty schema should be rejected")
	}
}

func TestChangeEncoding(t *testing.T) {
	changes := []RowChange{Update(Int(10)), Update(Null()), Delete(), Reinsert(Int(-3))}

	var buf []byte
	for _, c := range changes {
		buf = AppendChange(buf, c)
	}

	s := encoding.NewSlice(buf)
	for i, want := range changes {
		got, err := GetChange(s)
		if err != nil {
			t.Fatalf("change %d: %v", i, err)
		}
		if got != want {
			t.Errorf("change %d = %v, want %v", i, got, want)
		}
	}
	if s.Remaining() != 0 {
		t.Errorf("%d trailing bytes", s.Remaining())
	}
}

func TestChangeDecodeErrors(t *testing.T) {
	for _, buf := range [][]byte{nil, {9}, {byte(ChangeUpdate)}, {byte(ChangeUpdate), 2}} {
		if _, err := GetChange(encoding.NewSlice(buf)); !errors.Is(err, ErrCorruptChange) {
			t.Errorf("GetChange(%v) err = %v, want ErrCorruptChange", buf, err)
		}
	}
}

func TestApplyTo(t *testing.T) {
	val, deleted := Int(1), false

	val, deleted = Update(Int(2)).ApplyTo(val, deleted)
	if deleted || val != Int(2) {
		t.Fatalf("after update: %v %v", val, deleted)
	}
	val, deleted = Delete().ApplyTo(val, deleted)
	if !deleted {
		t.Fatal("after delete: row should be deleted")
	}
	val, deleted = Reinsert(Null()).ApplyTo(val, deleted)
	if deleted || !val.IsNull() {
		t.Fatalf("after reinsert: %v %v", val, deleted)
	}
}
