// Command gbcore is an ebiten desktop host for the gbcore package: a window,
// keyboard input, and audio playback wired against gbcore.System purely
// through its GameBoyInput/GameBoyOutput callbacks, the same role the
// teacher's internal/ui package played against its own emu.Machine.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/haltline/gbcore"
	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gb/.gbc)")
	bootPath := flag.String("bootrom", "", "optional boot ROM image")
	cgb := flag.Bool("cgb", false, "run in Game Boy Color mode")
	scale := flag.Int("scale", 3, "window scale")
	title := flag.String("title", "gbcore", "window title")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("usage: gbcore -rom <path> [-bootrom <path>] [-cgb] [-scale N]")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	var boot []byte
	if *bootPath != "" {
		boot, err = os.ReadFile(*bootPath)
		if err != nil {
			log.Fatalf("read bootrom: %v", err)
		}
	}

	mode := gbcore.DMG
	if *cgb {
		mode = gbcore.CGB
	}

	cfg := Config{ROMPath: *romPath, Title: *title, Scale: *scale}
	a := newApp(cfg)

	var save []byte
	if data, err := readSaveFile(a.savePath()); err == nil {
		save = data
	}

	sys, err := gbcore.New(mode, rom, a, a, gbcore.Options{BootROM: boot, Save: save})
	if err != nil {
		log.Fatalf("create system: %v", err)
	}
	a.sys = sys

	if err := ebiten.RunGame(a); err != nil {
		log.Fatal(err)
	}
}
