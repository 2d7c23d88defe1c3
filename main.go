package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Lytrix/MidiLooper-sub000/config"
	"github.com/Lytrix/MidiLooper-sub000/control"
	"github.com/Lytrix/MidiLooper-sub000/debug"
	"github.com/Lytrix/MidiLooper-sub000/looper"
	"github.com/Lytrix/MidiLooper-sub000/midi"
	"github.com/Lytrix/MidiLooper-sub000/theme"
	"github.com/Lytrix/MidiLooper-sub000/tui"
)

// advanceEvery is the engine poll period. A tick lasts about 1ms at the
// top of the BPM range, so 2ms keeps scheduling jitter under one tick's
// worth of events.
const advanceEvery = 2 * time.Millisecond

// rescanEvery is how often the MIDI port watcher looks for hot-plugged
// devices.
const rescanEvery = 2 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "config file (default ~/.config/midilooper/config.json)")
		projectDir  = flag.String("project", "", "project save directory (default from config)")
		palettePath = flag.String("palette", "", "GIMP .gpl palette for the UI colors")
		listPorts   = flag.Bool("list-ports", false, "list MIDI ports and exit")
		debugLog    = flag.Bool("debug", false, "write a debug log to ~/.config/midilooper/debug.log")
	)
	flag.Parse()

	if *debugLog {
		debug.Enable()
		defer debug.Disable()
	}

	if *listPorts {
		ins, outs := midi.Ports()
		fmt.Println("inputs:")
		for _, p := range ins {
			fmt.Println("  " + p)
		}
		fmt.Println("outputs:")
		for _, p := range outs {
			fmt.Println("  " + p)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	dir := *projectDir
	if dir == "" {
		dir = cfg.ProjectDir
	}
	if dir == "" {
		var err error
		dir, err = config.DefaultProjectDir()
		if err != nil {
			dir = "projects"
		}
	}

	th := theme.New(theme.Default())
	if *palettePath != "" {
		pal, err := theme.LoadGPL(*palettePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "palette: %v\n", err)
			os.Exit(1)
		}
		th = theme.New(pal)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	man := midi.NewManager()
	defer man.Close()

	clk := looper.NewClock(cfg.BPM)
	eng := looper.NewEngine(clk, man.OpenOut(cfg.OutputPort))
	eng.SetChannel(cfg.Channel)
	if !cfg.Quantize {
		eng.ToggleQuantize()
	}

	saver := looper.NewAutoSaver(eng, dir)
	eng.SetSaver(saver)
	go saver.Run(ctx)

	// A broken save must not keep the instrument from starting; it just
	// comes up with an empty session.
	if err := eng.LoadLatest(dir); err != nil {
		fmt.Fprintf(os.Stderr, "load project: %v\n", err)
	}

	if err := man.Listen(cfg.InputPort, midi.Route(eng)); err != nil {
		// Not fatal: the watcher reattaches the moment the port shows up.
		debug.Log("main", "midi input: %v", err)
	}
	go man.Watch(ctx, rescanEvery)
	go clk.Run(ctx)

	var coord *control.Coordinator
	if cfg.SerialPort != "" {
		link, err := control.OpenLink(cfg.SerialPort, cfg.BaudRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fader box: %v\n", err)
			os.Exit(1)
		}
		defer link.Close()
		coord = control.NewCoordinator(eng, link, cfg.ControlBindings())
		go link.ReadFrames(func(f control.Frame) {
			if name, value, ok := control.InputFor(f); ok {
				coord.Input(name, value, time.Now())
			}
		})
	}

	// The runtime loop: drain due events and run the fader box schedule.
	// The TUI only ever reads snapshots, so this loop is the sole caller
	// that moves playback forward.
	go func() {
		ticker := time.NewTicker(advanceEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				eng.Advance()
				if coord != nil {
					coord.Tick(now)
				}
			}
		}
	}()

	p := tea.NewProgram(tui.New(eng, th), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}

	// Orderly exit: stop the loops, silence the synth, save once more.
	cancel()
	eng.StopAll()
	if _, err := eng.SaveProject(dir); err != nil {
		fmt.Fprintf(os.Stderr, "final save: %v\n", err)
	}
}
