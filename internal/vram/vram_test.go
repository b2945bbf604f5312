package vram

import "testing"

func TestVRAM_BankSwitchCGB(t *testing.T) {
	v := New(true)
	v.WriteCPU(0x8000, 0x11)
	v.WriteVBK(1)
	v.WriteCPU(0x8000, 0x22)

	if got := v.ReadBank(0, 0x8000); got != 0x11 {
		t.Fatalf("bank0 got %02x want 11", got)
	}
	if got := v.ReadBank(1, 0x8000); got != 0x22 {
		t.Fatalf("bank1 got %02x want 22", got)
	}
}

func TestVRAM_DMGIgnoresBankSwitch(t *testing.T) {
	v := New(false)
	v.WriteVBK(1)
	if v.bank != 0 {
		t.Fatalf("DMG should never switch VRAM bank")
	}
}

func TestVRAM_AccessGating(t *testing.T) {
	v := New(false)
	v.SetAccess(false, false)
	v.WriteCPU(0x8000, 0x99)
	if got := v.ReadCPU(0x8000); got != 0xFF {
		t.Fatalf("gated read should be FF, got %02x", got)
	}
}

func TestHDMA_GeneralPurposeTransfer(t *testing.T) {
	var h HDMA
	h.WriteHDMA1(0xC0) // src 0xC000
	h.WriteHDMA2(0x00)
	h.WriteHDMA3(0x00) // dst offset 0x0000
	h.WriteHDMA4(0x00)

	src := make([]byte, 0x100)
	for i := range src {
		src[i] = byte(i)
	}
	var dst [0x20]byte
	read := func(addr uint16) byte { return src[addr&0xFF] }
	write := func(off uint16, v byte) { dst[off] = v }

	startedGP := h.WriteHDMA5(0x01) // 2*16 = 32 bytes, GP mode
	if !startedGP {
		t.Fatalf("bit7=0 should start GP mode")
	}
	for h.Active() {
		h.TransferChunk(read, write)
	}
	for i := 0; i < 32; i++ {
		if dst[i] != byte(i) {
			t.Fatalf("dst[%d] = %02x want %02x", i, dst[i], byte(i))
		}
	}
}

func TestHDMA_HBlankCancel(t *testing.T) {
	var h HDMA
	h.WriteHDMA5(0x81) // HBlank mode, length 32
	if h.WriteHDMA5(0x01) != false {
		t.Fatalf("re-arming with bit7=0 while HBlank-active should cancel, not start GP")
	}
	if h.Active() {
		t.Fatalf("transfer should be cancelled")
	}
}

func TestHDMA_ReadHDMA5ReportsRemaining(t *testing.T) {
	var h HDMA
	h.WriteHDMA5(0x81) // 32 bytes remaining, HBlank
	if got := h.ReadHDMA5(); got != 0x01 {
		t.Fatalf("expected 1 remaining unit, got %02x", got)
	}
}
