package gpio

import "testing"

func TestMockEdges(t *testing.T) {
	m := NewMockDriver()
	m.Fall(5)
	if e, _ := m.EdgeDetected(5); e {
		t.Error("edge reported on an unarmed pin")
	}
	if err := m.DetectFalling(5); err != nil {
		t.Fatal(err)
	}
	m.Fall(5)
	if e, _ := m.EdgeDetected(5); !e {
		t.Error("edge not reported")
	}
	if e, _ := m.EdgeDetected(5); e {
		t.Error("edge not cleared after read")
	}
}

func TestMockRises(t *testing.T) {
	m := NewMockDriver()
	for i := 0; i < 3; i++ {
		m.WritePin(6, High)
		m.WritePin(6, High)
		m.WritePin(6, Low)
	}
	if got := m.Rises(6); got != 3 {
		t.Errorf("Rises() = %d, want 3", got)
	}
	if err := m.SetupPin(6, PinMode(7)); err == nil {
		t.Error("SetupPin accepted an unknown mode")
	}
}
