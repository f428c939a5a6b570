package modbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegistersToInt32(t *testing.T) {
	for _, test := range []struct {
		in   []byte
		want int32
	}{
		{[]byte{0, 0, 0, 1}, 1},
		{[]byte{0xff, 0xff, 0xff, 0xff}, -1},
		{[]byte{0, 1, 0, 0}, 65536},
		{[]byte{0, 1}, 0},
	} {
		if got := RegistersToInt32(test.in); got != test.want {
			t.Errorf("RegistersToInt32(%v) = %d, want %d", test.in, got, test.want)
		}
	}
}

func TestBytesToBits(t *testing.T) {
	got := BytesToBits([]byte{0x05})
	want := []bool{true, false, true, false, false, false, false, false}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("unexpected bits: got(-)/want(+):\n%s", diff)
	}
}

func TestInt32Registers(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 167, -167, 1 << 20} {
		if got := RegistersToInt32(Int32ToRegisters(v)); got != v {
			t.Errorf("round trip of %d = %d", v, got)
		}
	}
}
