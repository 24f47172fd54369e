package structlayout

import (
	"testing"
	"time"

	"github.com/llir/llvm/ir/types"
)

func TestScalarTypeIsSingleField(t *testing.T) {
	o := NewOracle()
	info := o.LayoutOf(types.I32)
	if info.ExpandedSize() != 1 {
		t.Fatalf("expected scalar ExpandedSize 1, got %d", info.ExpandedSize())
	}
	if info.FieldType(0) != types.I32 {
		t.Fatalf("expected field 0 to be I32")
	}
}

func TestNestedStructFlattens(t *testing.T) {
	inner := types.NewStruct(types.I32, types.I32)
	outer := types.NewStruct(types.I8, inner, types.I64)

	o := NewOracle()
	info := o.LayoutOf(outer)
	if info.ExpandedSize() != 4 {
		t.Fatalf("expected 4 flattened fields, got %d", info.ExpandedSize())
	}
	if info.FieldType(0) != types.I8 {
		t.Fatalf("field 0 should be I8")
	}
	if info.FieldType(1) != types.I32 || info.FieldType(2) != types.I32 {
		t.Fatalf("fields 1-2 should be the inner struct's I32s")
	}
	if info.FieldType(3) != types.I64 {
		t.Fatalf("field 3 should be I64")
	}
}

func TestOpaqueStructIsOneField(t *testing.T) {
	st := &types.StructType{Opaque: true}

	o := NewOracle()
	info := o.LayoutOf(st)
	if info.ExpandedSize() != 1 {
		t.Fatalf("opaque struct should flatten to 1 field, got %d", info.ExpandedSize())
	}
}

func TestArrayExpansionIsCapped(t *testing.T) {
	at := types.NewArray(100, types.I32)

	o := NewOracle()
	info := o.LayoutOf(at)
	if info.ExpandedSize() != 4 {
		t.Fatalf("expected array expansion capped at 4, got %d", info.ExpandedSize())
	}
}

func TestSmallArrayExpandsFully(t *testing.T) {
	at := types.NewArray(2, types.I32)

	o := NewOracle()
	info := o.LayoutOf(at)
	if info.ExpandedSize() != 2 {
		t.Fatalf("expected 2 fields for a 2-element array, got %d", info.ExpandedSize())
	}
}

func TestSelfReferentialStructDoesNotLoop(t *testing.T) {
	st := &types.StructType{}
	st.Fields = []types.Type{types.I32, types.NewPointer(st)}

	o := NewOracle()
	done := make(chan *Info, 1)
	go func() {
		done <- o.LayoutOf(st)
	}()
	select {
	case info := <-done:
		if info.ExpandedSize() != 2 {
			t.Fatalf("expected 2 fields (i32, self-pointer), got %d", info.ExpandedSize())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("LayoutOf did not terminate on a self-referential struct")
	}
}

func TestMemoizationReturnsSameInfo(t *testing.T) {
	st := types.NewStruct(types.I32)

	o := NewOracle()
	a := o.LayoutOf(st)
	b := o.LayoutOf(st)
	if a != b {
		t.Fatalf("expected LayoutOf to memoize and return the same *Info")
	}
}

func TestElementType(t *testing.T) {
	pt := types.NewPointer(types.I32)
	if ElementType(pt) != types.I32 {
		t.Fatalf("expected pointer element type I32")
	}
	at := types.NewArray(3, types.I64)
	if ElementType(at) != types.I64 {
		t.Fatalf("expected array element type I64")
	}
}

func TestElementTypePanicsOnScalar(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected ElementType(I32) to panic")
		}
	}()
	ElementType(types.I32)
}

func TestIsAggregate(t *testing.T) {
	if !IsAggregate(types.NewStruct(types.I32)) {
		t.Fatalf("struct should be an aggregate")
	}
	if !IsAggregate(types.NewArray(2, types.I32)) {
		t.Fatalf("array should be an aggregate")
	}
	if IsAggregate(types.I32) {
		t.Fatalf("scalar should not be an aggregate")
	}
}

