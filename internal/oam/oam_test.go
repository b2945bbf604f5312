package oam

import "testing"

func TestOAM_ReadWriteRoundTrips(t *testing.T) {
	o := New()
	o.WriteCPU(0xFE00, 0x10)
	o.WriteCPU(0xFE01, 0x20)
	if got := o.ReadCPU(0xFE00); got != 0x10 {
		t.Fatalf("got %02x want 10", got)
	}
	s := o.Sprite(0)
	if s.Y != 0x10 || s.X != 0x20 {
		t.Fatalf("sprite decode mismatch: %+v", s)
	}
}

func TestOAM_ScreenOffsets(t *testing.T) {
	s := Sprite{Y: 16, X: 8}
	if s.ScreenY() != 0 || s.ScreenX() != 0 {
		t.Fatalf("offset application wrong: y=%d x=%d", s.ScreenY(), s.ScreenX())
	}
}

func TestOAM_DMATransfersOverHundredSixtyCycles(t *testing.T) {
	o := New()
	src := make([]byte, 0x100)
	for i := range src {
		src[i] = byte(i)
	}
	read := func(addr uint16) byte { return src[addr&0xFF] }

	o.StartDMA(0xC0)
	if !o.DMAActive() {
		t.Fatalf("DMA should be armed immediately")
	}
	o.Tick(read) // the "next cycle" start, no byte copied yet
	for i := 0; i < 160; i++ {
		if !o.DMAActive() {
			t.Fatalf("DMA ended early at step %d", i)
		}
		o.Tick(read)
	}
	if o.DMAActive() {
		t.Fatalf("DMA should be done after 160 transfer ticks")
	}
	for i := 0; i < 160; i++ {
		if got := o.data[i]; got != byte(i) {
			t.Fatalf("oam[%d] = %02x want %02x", i, got, byte(i))
		}
	}
}

func TestOAM_ReadsBlockedDuringDMA(t *testing.T) {
	o := New()
	o.WriteCPU(0xFE00, 0x55)
	o.StartDMA(0xC0)
	o.Tick(func(uint16) byte { return 0 })
	if got := o.ReadCPU(0xFE00); got != 0xFF {
		t.Fatalf("CPU OAM read during DMA should be 0xFF, got %02x", got)
	}
}

func TestOAM_SaveLoadStateRoundTrips(t *testing.T) {
	o := New()
	o.WriteCPU(0xFE05, 0x99)
	o.StartDMA(0x80)

	data := o.SaveState()
	other := New()
	other.LoadState(data)
	if other.data[5] != 0x99 || !other.DMAActive() {
		t.Fatalf("state did not round-trip")
	}
}
