package looper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"

	"github.com/Lytrix/MidiLooper-sub000/debug"
)

// SaveInfo represents one saved session file, for listing.
type SaveInfo struct {
	Filename  string
	Timestamp time.Time
}

const saveTimeLayout = "2006-01-02_15-04-05"

// projectState is the wire form of a whole session. Runtime-only track
// fields (pending notes, caches, playheads, histories) stay out of it;
// a load starts those fresh.
type projectState struct {
	Version  int          `json:"version"`
	BPM      float64      `json:"bpm"`
	Quantize bool         `json:"quantize"`
	Channel  uint8        `json:"channel"`
	Current  int          `json:"currentTrack"`
	Tracks   []trackState `json:"tracks"`
}

type trackState struct {
	Events     []Event `json:"events"`
	LoopLength uint32  `json:"loopLength"`
	LoopStart  uint32  `json:"loopStart"`
	Muted      bool    `json:"muted"`
}

// ProjectsDir returns the session save directory.
func ProjectsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midilooper", "projects"), nil
}

// ListSaves returns the timestamped saves in dir, newest first.
func ListSaves(dir string) ([]SaveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SaveInfo{}, nil
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		if len(base) < len(saveTimeLayout) {
			continue
		}
		ts, err := time.Parse(saveTimeLayout, base[:len(saveTimeLayout)])
		if err != nil {
			continue
		}
		saves = append(saves, SaveInfo{Filename: name, Timestamp: ts})
	}

	sort.Slice(saves, func(i, j int) bool {
		return saves[i].Timestamp.After(saves[j].Timestamp)
	})
	return saves, nil
}

// snapshotProject captures the durable session state under the lock.
func (e *Engine) snapshotProject() projectState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ps := projectState{
		Version:  1,
		BPM:      e.clock.BPM(),
		Quantize: e.quantize,
		Channel:  e.channel,
		Current:  e.current,
		Tracks:   make([]trackState, NumTracks),
	}
	for i, t := range e.tracks {
		ps.Tracks[i] = trackState{
			Events:     t.Events(),
			LoopLength: t.loopLength,
			LoopStart:  t.loopStart,
			Muted:      t.muted,
		}
	}
	return ps
}

// SaveProject writes a timestamped session file into dir and returns its
// path.
func (e *Engine) SaveProject(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fault.Wrap(err, fmsg.With("could not create project dir"))
	}

	ps := e.snapshotProject()
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return "", fault.Wrap(err, fmsg.With("could not encode project"))
	}

	path := filepath.Join(dir, time.Now().Format(saveTimeLayout)+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fault.Wrap(err, fmsg.With("could not write project file"))
	}
	debug.Log("project", "saved %s (%d bytes)", path, len(data))
	return path, nil
}

// LoadProject replaces the whole session with a saved one. Loaded tracks
// come back stopped (or empty), with fresh caches and histories; the
// save never carries runtime state.
func (e *Engine) LoadProject(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fault.Wrap(err, fmsg.With("could not read project file"))
	}
	var ps projectState
	if err := json.Unmarshal(data, &ps); err != nil {
		return fault.Wrap(err, fmsg.With("could not decode project file"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.editor.Exit()
	if ps.BPM > 0 {
		e.clock.SetBPM(ps.BPM)
	}
	e.quantize = ps.Quantize
	e.channel = ps.Channel & 0x0F
	e.editor.channel = e.channel
	if ps.Current >= 0 && ps.Current < NumTracks {
		e.current = ps.Current
	}

	for i := range e.tracks {
		t := NewTrack()
		if i < len(ps.Tracks) {
			ts := ps.Tracks[i]
			t.events = append(t.events, ts.Events...)
			sortEvents(t.events)
			t.loopLength = ts.LoopLength
			t.loopStart = ts.LoopStart
			t.muted = ts.Muted
			if len(t.events) > 0 && t.loopLength > 0 {
				t.state = TrackStopped
			}
		}
		e.tracks[i] = t
	}
	debug.Log("project", "loaded %s", path)
	e.notify()
	return nil
}

// LoadLatest loads the newest save in dir, if any.
func (e *Engine) LoadLatest(dir string) error {
	saves, err := ListSaves(dir)
	if err != nil {
		return err
	}
	if len(saves) == 0 {
		return nil
	}
	return e.LoadProject(filepath.Join(dir, saves[0].Filename))
}

// AutoSaver debounces save requests into actual writes, so a burst of
// edits costs one file. It satisfies Saver; RequestSave never blocks.
type AutoSaver struct {
	eng      *Engine
	dir      string
	requests chan struct{}
	interval time.Duration
}

func NewAutoSaver(eng *Engine, dir string) *AutoSaver {
	return &AutoSaver{
		eng:      eng,
		dir:      dir,
		requests: make(chan struct{}, 1),
		interval: 2 * time.Second,
	}
}

func (s *AutoSaver) RequestSave() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Run writes at most one save per interval until ctx ends, then flushes
// a final save if one is pending. The window opens on the first request
// and is not re-armed by later ones, so a long drag still saves.
func (s *AutoSaver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			select {
			case <-s.requests:
				if _, err := s.eng.SaveProject(s.dir); err != nil {
					debug.Log("project", "final save failed: %v", err)
				}
			default:
			}
			return
		case <-s.requests:
			timer := time.NewTimer(s.interval)
		window:
			for {
				select {
				case <-ctx.Done():
					timer.Stop()
					if _, err := s.eng.SaveProject(s.dir); err != nil {
						debug.Log("project", "final save failed: %v", err)
					}
					return
				case <-s.requests:
					// coalesces into the open window
				case <-timer.C:
					break window
				}
			}
			if _, err := s.eng.SaveProject(s.dir); err != nil {
				debug.Log("project", "save failed: %v", err)
			}
		}
	}
}
