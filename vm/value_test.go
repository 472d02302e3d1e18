package vm

import "testing"

func TestFromIntegerRoundTrip16(t *testing.T) {
	for n := int64(-8192); n < 8192; n++ {
		v := FromInteger[uint16](n)
		if got := ToInteger(v); got != n {
			t.Fatalf("ToInteger(FromInteger(%d)) = %d", n, got)
		}
		if IsPointer(v) {
			t.Fatalf("FromInteger(%d) reported as pointer", n)
		}
	}
}

func TestFromIntegerRoundTrip32(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 1 << 20, -(1 << 20), 1<<29 - 1, -(1 << 29)} {
		v := FromInteger[uint32](n)
		if got := ToInteger(v); got != n {
			t.Errorf("ToInteger(FromInteger(%d)) = %d", n, got)
		}
	}
}

func TestFromIntegerRoundTrip64(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 1 << 40, -(1 << 40), 1<<61 - 1, -(1 << 61)} {
		v := FromInteger[uint64](n)
		if got := ToInteger(v); got != n {
			t.Errorf("ToInteger(FromInteger(%d)) = %d", n, got)
		}
	}
}

func TestFromPointerRoundTrip(t *testing.T) {
	for i := uint64(0); i < 1024; i += 2 {
		v := FromPointer[uint32](i)
		if !IsPointer(v) {
			t.Fatalf("FromPointer(%d) not reported as pointer", i)
		}
		if got := ToPointer(v); got != i {
			t.Fatalf("ToPointer(FromPointer(%d)) = %d", i, got)
		}
		if IsPointer(FromInteger[uint32](int64(i))) {
			t.Fatalf("FromInteger(%d) reported as pointer", i)
		}
	}
}

func TestMarkPreservesPayload(t *testing.T) {
	for _, v := range []Value[uint32]{FromInteger[uint32](-17), FromPointer[uint32](42), 0} {
		for _, b := range []bool{true, false} {
			marked := Mark(v, b)
			if IsMarked(marked) != b {
				t.Fatalf("IsMarked(Mark(%v, %v)) != %v", v, b, b)
			}
			if IsPointer(marked) != IsPointer(v) {
				t.Fatalf("Mark changed kind bit of %v", v)
			}
			unmarked := Mark(marked, IsMarked(v))
			if unmarked != v {
				t.Fatalf("marking round trip: got %v, want %v", unmarked, v)
			}
		}
	}
}

func TestSetPointerPreservesLowBits(t *testing.T) {
	v := Mark(FromPointer[uint32](10), true)
	updated := SetPointer(v, 20)
	if !IsPointer(updated) {
		t.Fatal("SetPointer flipped kind bit")
	}
	if !IsMarked(updated) {
		t.Fatal("SetPointer cleared mark bit")
	}
	if got := ToPointer(updated); got != 20 {
		t.Fatalf("ToPointer(SetPointer(v, 20)) = %d", got)
	}
}

func TestZeroValueIsNullAndUnmarked(t *testing.T) {
	var v Value[uint32]
	if !IsPointer(v) {
		t.Error("zero value should read as pointer kind (null)")
	}
	if IsMarked(v) {
		t.Error("zero value should not be marked")
	}
	if ToPointer(v) != 0 {
		t.Error("zero value should point at index 0")
	}
}
