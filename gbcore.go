// Package gbcore is the public surface of the emulator: a System that steps
// a Game Boy or Game Boy Color one frame at a time and exchanges input,
// video, audio, and serial data with a host through a small set of
// interfaces. cmd/gbcore (an ebiten desktop host) and cmd/gbcli (a headless
// runner) are both ordinary consumers of this package, not special cases.
package gbcore

import (
	"github.com/haltline/gbcore/internal/log"
	"github.com/haltline/gbcore/internal/system"
)

// Mode selects DMG (original Game Boy) or CGB (Game Boy Color) hardware
// behavior at construction time.
type Mode = system.Mode

const (
	DMG Mode = system.DMG
	CGB Mode = system.CGB
)

// Buttons is the button/d-pad snapshot GameBoyInput.Read returns, latched
// once per frame.
type Buttons = system.Buttons

// GameBoyInput is polled once per frame to read the joypad state for that
// frame.
type GameBoyInput = system.Input

// GameBoyOutput receives, once at the end of each StepFrame, the frame the
// PPU published at its most recent VBlank start; it is not called at the
// VBlank instant itself.
// Every other callback a host may want (audio, serial, debug views, step
// count) is an optional capability: implement the matching interface below
// alongside GameBoyOutput and System detects it automatically.
type GameBoyOutput = system.Output

// SoundSink receives a filled PCM sample buffer whenever the APU's
// resampler produces one.
type SoundSink = system.SoundSink

// SerialSink receives one byte per link-cable transfer.
type SerialSink = system.SerialSink

// DebugBackgroundSink receives the full 256x256 background tile map on
// request, ignoring scroll.
type DebugBackgroundSink = system.DebugBackgroundSink

// DebugTilesetSink receives a dump of both VRAM banks' decoded tile data.
type DebugTilesetSink = system.DebugTilesetSink

// StepCounter is notified of the cumulative frame count after every
// StepFrame call.
type StepCounter = system.StepCounter

// Logger is the ambient debug-logging interface System accepts via
// Options.Debug; log.NewStdFromEnv and log.NewStd build ready-made ones.
type Logger = log.Logger

// Options configures construction: an optional boot ROM image to run
// before the cartridge's own entry point, an optional save blob to restore
// immediately, and an optional debug logger.
type Options = system.Options

// InvalidROMError reports a ROM construction failure. The only case raised
// is a ROM shorter than 0x8000 bytes: an unknown MBC (mapper) type falls
// back to ROM-only, and the header's ROM size is not checked against the
// image length.
type InvalidROMError = system.InvalidROMError

// InvalidOpcodeError reports the CPU executing an undefined opcode and
// locking up. It is fatal: System.StepFrame returns the same error on
// every call once raised.
type InvalidOpcodeError = system.InvalidOpcodeError

// SaveMismatchError reports that a save blob passed to Load or
// Options.Save does not belong to this ROM, or was produced by an
// incompatible save-format version.
type SaveMismatchError = system.SaveMismatchError

// System is a Game Boy/Game Boy Color core: a CPU and bus stepped one
// frame at a time.
type System = system.System

// New constructs a System running rom in the given mode. input and output
// may be nil if the host doesn't need that direction; a nil output simply
// means no frame is ever delivered and no optional sink is ever checked.
func New(mode Mode, rom []byte, input GameBoyInput, output GameBoyOutput, opts Options) (*System, error) {
	return system.New(mode, rom, input, output, opts)
}
