package wire

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRequestLayout(t *testing.T) {
	rq := RequestPacket{Command: GotoTheta, IValue: -2, FValue: [3]float32{12.5, -1, 0}}
	rq.SetBuf("observatory")
	b, err := rq.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != RequestSize {
		t.Fatalf("encoded %d bytes, want %d", len(b), RequestSize)
	}
	if got := binary.LittleEndian.Uint16(b[0:]); got != 102 {
		t.Errorf("command = %d, want 102", got)
	}
	if got := int16(binary.LittleEndian.Uint16(b[2:])); got != -2 {
		t.Errorf("ivalue = %d, want -2", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[4:])); got != 12.5 {
		t.Errorf("fvalue[0] = %v, want 12.5", got)
	}
	if got := string(b[16:27]); got != "observatory" {
		t.Errorf("buf = %q", got)
	}

	var decoded RequestPacket
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(decoded, rq); diff != "" {
		t.Errorf("unexpected request: got(-)/want(+):\n%s", diff)
	}
	if got := decoded.BufString(); got != "observatory" {
		t.Errorf("BufString() = %q", got)
	}
}

func TestStatusLayout(t *testing.T) {
	sp := StatusPacket{
		Reply:               ReplyOK,
		CorrectionClockwise: 1,
		HomePos:             3,
		MaxCW:               -1536,
		MaxCCW:              1536,
		LimitsEnabled:       1,
		AngleDeg:            12.3,
		AccumulatedAngleDeg: 45.6,
		WLANSecurity:        SecurityWPA2,
		EarthOmega:          7.2921150e-5,
	}
	sp.SetSSID("dome")
	copy(sp.WLANPassword[:], "hunter2")
	b, err := sp.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != StatusSize {
		t.Fatalf("encoded %d bytes, want %d", len(b), StatusSize)
	}
	for _, test := range []struct {
		name   string
		offset int
		want   int16
	}{
		{"clockwise", 2, 1},
		{"home", 4, 3},
		{"max cw", 6, -1536},
		{"max ccw", 8, 1536},
		{"limits", 10, 1},
		{"security", 84, 3},
	} {
		if got := int16(binary.LittleEndian.Uint16(b[test.offset:])); got != test.want {
			t.Errorf("%s @%d = %d, want %d", test.name, test.offset, got, test.want)
		}
	}
	for i, c := range b[52:84] {
		if c != 0 {
			t.Fatalf("password byte %d = %#x, want 0", i, c)
		}
	}

	var decoded StatusPacket
	if err := decoded.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	want := sp
	want.WLANPassword = [BufSize]byte{}
	if diff := cmp.Diff(decoded, want); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}
	if decoded.SSID() != "dome" {
		t.Errorf("SSID() = %q", decoded.SSID())
	}
}

func TestReplyLayout(t *testing.T) {
	rp := ReplyPacket{Reply: ReplyLimit, FValue: [4]float32{1, 2, 3, 4}}
	b, _ := rp.MarshalBinary()
	if len(b) != ReplySize {
		t.Fatalf("encoded %d bytes, want %d", len(b), ReplySize)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(b[16:])); got != 4 {
		t.Errorf("fvalue[3] = %v, want 4", got)
	}
	var decoded ReplyPacket
	if err := decoded.UnmarshalBinary(b[:ReplySize-1]); err == nil {
		t.Error("decoding a short reply succeeded")
	}
}

func TestSetBufTruncates(t *testing.T) {
	var rq RequestPacket
	long := "0123456789012345678901234567890123456789"
	rq.SetBuf(long)
	if got := rq.BufString(); got != long[:BufSize-1] {
		t.Errorf("BufString() = %q", got)
	}
}

func TestBands(t *testing.T) {
	for _, test := range []struct {
		cmd  Command
		want Band
	}{
		{Start, BandControl},
		{19, BandControl},
		{LoadDefaults, BandSetup},
		{QueryState, BandQuery},
		{250, BandQuery},
		{50, BandNone},
		{-1, BandNone},
	} {
		if got := test.cmd.Band(); got != test.want {
			t.Errorf("%v.Band() = %v, want %v", test.cmd, got, test.want)
		}
	}
	if c, ok := ParseCommand("goto-theta"); !ok || c != GotoTheta {
		t.Errorf("ParseCommand(goto-theta) = %v, %v", c, ok)
	}
}
