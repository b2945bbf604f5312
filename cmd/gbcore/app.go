package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/haltline/gbcore"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const (
	sampleRateHz = 44100
	gbFPS        = 4194304.0 / 70224.0 // ~59.7275, same derivation the teacher paces Update() against
)

// app is an ebiten.Game implementing gbcore.GameBoyInput/GameBoyOutput
// directly, the role internal/ui.App played against the teacher's
// emu.Machine, now talking to the core only through gbcore's callbacks.
type app struct {
	cfg    Config
	sys    *gbcore.System
	tex    *ebiten.Image
	toast  string
	toastT time.Time

	paused bool
	fast   bool

	buttons  gbcore.Buttons
	frame    [160 * 144]uint32
	frameN   int
	lastTime time.Time
	frameAcc float64

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	pcm         *pcmStream
}

// newApp builds the host with its window and audio player ready, but no
// System yet: a *app itself satisfies GameBoyInput/GameBoyOutput, so the
// caller constructs gbcore.New(..., a, a, ...) and assigns a.sys afterward.
func newApp(cfg Config) *app {
	a := &app{cfg: cfg}
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	a.lastTime = time.Now()
	a.audioCtx = audio.NewContext(sampleRateHz)
	a.pcm = &pcmStream{}
	if p, err := a.audioCtx.NewPlayer(a.pcm); err == nil {
		a.audioPlayer = p
		a.audioPlayer.Play()
	}
	return a
}

// ReceiveGraphics implements gbcore.GameBoyOutput.
func (a *app) ReceiveGraphics(frame [160 * 144]uint32) { a.frame = frame }

// StepCount implements gbcore.StepCounter.
func (a *app) StepCount(n int) { a.frameN = n }

// SerialOut implements gbcore.SerialSink: link-cable bytes go to stdout.
func (a *app) SerialOut(b byte) { fmt.Print(string(rune(b))) }

// ReceiveSound implements gbcore.SoundSink: mono float32 samples at
// sampleSize-per-frame cadence get queued for pcmStream to drain.
func (a *app) ReceiveSound(samples []float32) { a.pcm.push(samples) }

// Read implements gbcore.GameBoyInput.
func (a *app) Read() gbcore.Buttons { return a.buttons }

func (a *app) pollButtons() {
	a.buttons = gbcore.Buttons{
		Right:  ebiten.IsKeyPressed(ebiten.KeyRight),
		Left:   ebiten.IsKeyPressed(ebiten.KeyLeft),
		Up:     ebiten.IsKeyPressed(ebiten.KeyUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyDown),
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight),
	}
}

func (a *app) Update() error {
	a.pollButtons()

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := writeSaveFile(a.savePath(), a.sys.Save()); err != nil {
			a.setToast("save failed: " + err.Error())
		} else {
			a.setToast("saved")
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if data, err := readSaveFile(a.savePath()); err != nil {
			a.setToast("no save found")
		} else if err := a.sys.Load(data); err != nil {
			a.setToast("load failed: " + err.Error())
		} else {
			a.setToast("loaded")
		}
	}

	if !a.paused {
		now := time.Now()
		dt := now.Sub(a.lastTime).Seconds()
		a.lastTime = now
		speed := 1.0
		if a.fast {
			speed = 3.0
		}
		a.frameAcc += dt * gbFPS * speed
		steps := 0
		for a.frameAcc >= 1.0 && steps < 10 {
			if err := a.sys.StepFrame(); err != nil {
				return err
			}
			a.frameAcc -= 1.0
			steps++
		}
	} else if inpututil.IsKeyJustPressed(ebiten.KeyN) {
		if err := a.sys.StepFrame(); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	a.tex.WritePixels(argbToRGBA(a.frame))
	screen.DrawImage(a.tex, nil)

	if a.toast != "" && time.Now().Before(a.toastT) {
		ebitenutil.DebugPrintAt(screen, a.toast, 4, 4)
	}
}

func (a *app) Layout(outW, outH int) (int, int) { return 160, 144 }

func (a *app) setToast(msg string) {
	a.toast = msg
	a.toastT = time.Now().Add(2 * time.Second)
}

func (a *app) savePath() string { return a.cfg.ROMPath + ".sav" }

func argbToRGBA(frame [160 * 144]uint32) []byte {
	out := make([]byte, len(frame)*4)
	for i, px := range frame {
		out[i*4+0] = byte(px >> 16)
		out[i*4+1] = byte(px >> 8)
		out[i*4+2] = byte(px)
		out[i*4+3] = byte(px >> 24)
	}
	return out
}

// pcmStream implements io.Reader by draining mono float32 samples pushed
// from ReceiveSound, converting each to a 16-bit little-endian stereo
// frame, mirroring the teacher's apuStream conversion.
type pcmStream struct {
	buf []float32
}

func (s *pcmStream) push(samples []float32) {
	const maxBuffered = sampleRateHz // ~1s cap so a stalled player can't grow this unbounded
	s.buf = append(s.buf, samples...)
	if len(s.buf) > maxBuffered {
		s.buf = s.buf[len(s.buf)-maxBuffered:]
	}
}

func (s *pcmStream) Read(p []byte) (int, error) {
	frames := len(p) / 4
	i := 0
	for ; i < frames && i < len(s.buf); i++ {
		v := int16(s.buf[i] * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(v))
	}
	if i < len(s.buf) {
		s.buf = s.buf[i:]
	} else {
		s.buf = s.buf[:0]
	}
	for ; i < frames; i++ {
		binary.LittleEndian.PutUint16(p[i*4:], 0)
		binary.LittleEndian.PutUint16(p[i*4+2:], 0)
	}
	return frames * 4, nil
}
