package looper

import "fmt"

// TrackState is the lifecycle state of a track.
type TrackState uint8

const (
	TrackEmpty TrackState = iota
	TrackArmed
	TrackRecording
	TrackStoppedRecording
	TrackPlaying
	TrackOverdubbing
	TrackStopped
)

var trackStateNames = map[TrackState]string{
	TrackEmpty:            "empty",
	TrackArmed:            "armed",
	TrackRecording:        "recording",
	TrackStoppedRecording: "stopped-recording",
	TrackPlaying:          "playing",
	TrackOverdubbing:      "overdubbing",
	TrackStopped:          "stopped",
}

func (s TrackState) String() string {
	if name, ok := trackStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("track-state(%d)", s)
}

// validTransitions is the complete lifecycle graph. Clearing may happen
// from any state, so Empty is reachable from everywhere; everything else
// follows the record/play/overdub cycle.
var validTransitions = map[TrackState][]TrackState{
	TrackEmpty:            {TrackArmed},
	TrackArmed:            {TrackRecording, TrackEmpty},
	TrackRecording:        {TrackStoppedRecording, TrackEmpty},
	TrackStoppedRecording: {TrackPlaying, TrackStopped, TrackEmpty},
	TrackPlaying:          {TrackOverdubbing, TrackStoppedRecording, TrackStopped, TrackEmpty},
	TrackOverdubbing:      {TrackPlaying, TrackStopped, TrackEmpty},
	TrackStopped:          {TrackPlaying, TrackEmpty},
}

func isValidTransition(from, to TrackState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
