package color

import "testing"

func TestDMGShadeExtraction(t *testing.T) {
	reg := byte(0b11_10_01_00) // color3->shade3, color2->shade2, color1->shade1, color0->shade0
	if DMGShade(reg, 0) != 0 {
		t.Fatalf("color0 shade mismatch")
	}
	if DMGShade(reg, 3) != 3 {
		t.Fatalf("color3 shade mismatch")
	}
}

func TestCGBPaletteAutoIncrement(t *testing.T) {
	c := New(true)
	c.WriteBCPS(0x80) // index 0, auto-increment on
	c.WriteBCPD(0xFF)
	c.WriteBCPD(0x7F)
	if got := c.ReadBCPS() & 0x3F; got != 2 {
		t.Fatalf("expected index to auto-increment to 2, got %d", got)
	}

	got := c.BGColorARGB(0, 0)
	if got != 0xFFFFFFFF {
		t.Fatalf("white RGB555 should resolve to full white ARGB, got %08x", got)
	}
}

func TestCGBPaletteNoAutoIncrementWhenDisabled(t *testing.T) {
	c := New(true)
	c.WriteBCPS(0x00) // index 0, auto-increment off
	c.WriteBCPD(0x11)
	if got := c.ReadBCPS() & 0x3F; got != 0 {
		t.Fatalf("index should not advance without bit7, got %d", got)
	}
}

func TestDMGModeRejectsCGBPaletteWrites(t *testing.T) {
	c := New(false)
	c.WriteBCPS(0x80)
	c.WriteBCPD(0xFF)
	if c.ReadBCPD() != 0xFF {
		t.Fatalf("DMG BCPD read should be FF")
	}
}

func TestColor_SaveLoadStateRoundTrips(t *testing.T) {
	c := New(true)
	c.WriteBGP(0x1B)
	c.WriteBCPS(0x80)
	c.WriteBCPD(0x55)

	data := c.SaveState()
	other := New(true)
	other.LoadState(data)
	if other.ReadBGP() != 0x1B || other.ReadBCPD() != c.ReadBCPD() {
		t.Fatalf("state did not round-trip")
	}
}
