package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/Lytrix/MidiLooper-sub000/control"
	"github.com/Lytrix/MidiLooper-sub000/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "dump":
		dump()
	case "clock":
		watchClock()
	case "watch":
		watchPorts()
	case "fader":
		faderTest()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Looper Diagnostics")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List all MIDI ports")
	fmt.Println("  dump [port]   - Print incoming MIDI traffic")
	fmt.Println("  clock [port]  - Watch an external clock and estimate its BPM")
	fmt.Println("  watch         - Watch for ports appearing and disappearing")
	fmt.Println("  fader <dev>   - Sweep the fader motors and dump box frames")
}

func stamp() string {
	return time.Now().Format("15:04:05.000")
}

func listPorts() {
	ins, outs := midi.Ports()
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p)
	}
}

// dump prints everything arriving on a port, except the realtime spam:
// clock pulses collapse into a counter line per bar's worth and active
// sense is dropped outright.
func dump() {
	want := ""
	if len(os.Args) > 2 {
		want = os.Args[2]
	}

	man := midi.NewManager()
	defer man.Close()

	pulses := 0
	err := man.Listen(want, func(msg gomidi.Message) {
		switch {
		case msg.Is(gomidi.TimingClockMsg):
			pulses++
			if pulses%96 == 0 {
				fmt.Printf("  [%s] ...%d clock pulses\n", stamp(), pulses)
			}
		case msg.Is(gomidi.ActiveSenseMsg):
		default:
			fmt.Printf("  [%s] %s\n", stamp(), msg)
		}
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("Listening. Ctrl+C to exit.")
	select {}
}

// watchClock estimates the sender's tempo from the spacing of realtime
// clock pulses: 24 pulses make one quarter note.
func watchClock() {
	want := ""
	if len(os.Args) > 2 {
		want = os.Args[2]
	}

	man := midi.NewManager()
	defer man.Close()

	pulses := 0
	var windowStart time.Time
	err := man.Listen(want, func(msg gomidi.Message) {
		switch {
		case msg.Is(gomidi.TimingClockMsg):
			now := time.Now()
			if pulses == 0 {
				windowStart = now
			}
			pulses++
			if pulses == 25 {
				quarter := now.Sub(windowStart).Seconds()
				fmt.Printf("  [%s] %6.2f bpm\n", stamp(), 60/quarter)
				windowStart = now
				pulses = 1
			}
		case msg.Is(gomidi.StartMsg):
			fmt.Printf("  [%s] start\n", stamp())
			pulses = 0
		case msg.Is(gomidi.StopMsg):
			fmt.Printf("  [%s] stop\n", stamp())
			pulses = 0
		case msg.Is(gomidi.ContinueMsg):
			fmt.Printf("  [%s] continue\n", stamp())
		}
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println("Waiting for clock. Ctrl+C to exit.")
	select {}
}

func watchPorts() {
	fmt.Println("Watching for port changes every 2 seconds. Ctrl+C to exit.")

	var lastIns, lastOuts string
	for {
		ins, outs := midi.Ports()
		curIns := strings.Join(ins, ", ")
		curOuts := strings.Join(outs, ", ")
		if curIns != lastIns || curOuts != lastOuts {
			fmt.Printf("\n[%s] ports changed\n", time.Now().Format("15:04:05"))
			fmt.Printf("  inputs:  %s\n", curIns)
			fmt.Printf("  outputs: %s\n", curOuts)
			lastIns, lastOuts = curIns, curOuts
		}
		time.Sleep(2 * time.Second)
	}
}

// faderTest exercises the box in both directions: drive each motor to
// the top and back, then dump every frame the box sends until Ctrl+C.
func faderTest() {
	if len(os.Args) < 3 {
		fmt.Println("usage: midimon fader <device> [baud]")
		return
	}
	baud := 115200
	if len(os.Args) > 3 {
		n, err := strconv.Atoi(os.Args[3])
		if err != nil {
			fmt.Printf("bad baud rate %q\n", os.Args[3])
			return
		}
		baud = n
	}

	link, err := control.OpenLink(os.Args[2], baud)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer link.Close()

	fmt.Println("Sweeping motors...")
	for motor := 0; motor < 3; motor++ {
		link.SetFader(motor, 127)
		time.Sleep(300 * time.Millisecond)
		link.SetFader(motor, 0)
		time.Sleep(300 * time.Millisecond)
	}

	fmt.Println("Dumping frames. Move a fader or press a button. Ctrl+C to exit.")
	link.ReadFrames(func(f control.Frame) {
		if name, value, ok := control.InputFor(f); ok {
			fmt.Printf("  [%s] %-12s %d\n", stamp(), name, value)
			return
		}
		fmt.Printf("  [%s] cmd 0x%02x payload % x\n", stamp(), f.Cmd, f.Payload)
	})
}
