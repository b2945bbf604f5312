// Command gbcli is a headless, scriptable front end for gbcore: load a ROM,
// step it for a fixed number of frames, and dump the result to disk. It
// exists for CI/test-harness use, the way go-jeebie's cmd/jeebie --headless
// mode and the teacher's gbemu -headless flag do, without pulling window or
// audio code into the core.
package main

import (
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"strings"

	"github.com/haltline/gbcore"
	"github.com/urfave/cli"
)

// pngSink adapts gbcore's ReceiveGraphics callback to keep only the last
// frame, since headless mode only needs the final image.
type pngSink struct {
	last  [160 * 144]uint32
	steps int
}

func (s *pngSink) ReceiveGraphics(frame [160 * 144]uint32) { s.last = frame }
func (s *pngSink) StepCount(n int)                         { s.steps = n }
func (s *pngSink) SerialOut(b byte)                        { os.Stderr.Write([]byte{b}) }

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

func savePNG(frame [160 * 144]uint32, path string) error {
	pix := argbToRGBA(frame)
	img := &image.RGBA{Pix: pix, Stride: 4 * 160, Rect: image.Rect(0, 0, 160, 144)}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		cli.ShowAppHelp(c)
		return errors.New("no ROM path provided")
	}
	rom, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("read rom: %w", err)
	}

	var boot []byte
	if p := c.String("bootrom"); p != "" {
		boot, err = os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read bootrom: %w", err)
		}
	}

	var save []byte
	if p := c.String("loadstate"); p != "" {
		save, err = os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read save: %w", err)
		}
	}

	mode := gbcore.DMG
	if c.Bool("cgb") {
		mode = gbcore.CGB
	}

	sink := &pngSink{}
	sys, err := gbcore.New(mode, rom, nil, sink, gbcore.Options{BootROM: boot, Save: save})
	if err != nil {
		return fmt.Errorf("create system: %w", err)
	}

	frames := c.Int("frames")
	if frames <= 0 {
		frames = 1
	}
	for i := 0; i < frames; i++ {
		if err := sys.StepFrame(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	log.Printf("ran %d frames", sink.steps)

	if out := c.String("outpng"); out != "" {
		if err := savePNG(sink.last, out); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
		log.Printf("wrote %s", out)
	}

	if want := c.String("expect"); want != "" {
		got := fmt.Sprintf("%08x", crc32.ChecksumIEEE(argbToRGBA(sink.last)))
		want = strings.TrimPrefix(strings.ToLower(want), "0x")
		if got != want {
			return fmt.Errorf("framebuffer checksum mismatch: got %s, want %s", got, want)
		}
	}

	if out := c.String("savestate"); out != "" {
		if err := os.WriteFile(out, sys.Save(), 0644); err != nil {
			return fmt.Errorf("write savestate: %w", err)
		}
		log.Printf("wrote %s", out)
	}

	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "gbcli"
	app.Usage = "gbcli --rom <path> [options]"
	app.Description = "Headless Game Boy/Game Boy Color runner built on gbcore"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "rom", Usage: "path to ROM (.gb/.gbc)"},
		cli.StringFlag{Name: "bootrom", Usage: "optional boot ROM image"},
		cli.BoolFlag{Name: "cgb", Usage: "run in Game Boy Color mode"},
		cli.IntFlag{Name: "frames", Usage: "number of frames to run", Value: 300},
		cli.StringFlag{Name: "outpng", Usage: "write the final framebuffer to a PNG file"},
		cli.StringFlag{Name: "expect", Usage: "assert final framebuffer CRC32 (hex)"},
		cli.StringFlag{Name: "savestate", Usage: "write the final machine state to a file"},
		cli.StringFlag{Name: "loadstate", Usage: "load a machine state before running"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
