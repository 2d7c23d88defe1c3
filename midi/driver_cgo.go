//go:build cgo

package midi

// The rtmidi backend is a cgo binding and cannot compile with cgo
// disabled, so its registration lives behind the cgo build tag.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the rtmidi backend
