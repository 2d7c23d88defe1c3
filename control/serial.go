package control

import (
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"go.bug.st/serial"

	"github.com/Lytrix/MidiLooper-sub000/debug"
)

// Link is the serial line to the fader box. Writes are fire and forget;
// a failed motor update only costs feedback fidelity, never playback.
type Link struct {
	port serial.Port
}

// OpenLink opens the named serial device at the given baud rate.
func OpenLink(path string, baud int) (*Link, error) {
	port, err := serial.Open(path, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("could not open fader serial port"))
	}
	debug.Log("serial", "opened %s at %d baud", path, baud)
	return &Link{port: port}, nil
}

// SetFader writes one motor target. Implements MotorLink.
func (l *Link) SetFader(motor, value int) {
	f := Frame{Cmd: CmdSetFader, Payload: []byte{byte(motor), byte(value)}}
	if _, err := l.port.Write(f.Encode()); err != nil {
		debug.Log("serial", "set fader %d: %v", motor, err)
	}
}

// ReadFrames decodes the box's sensor traffic into fn until the line
// closes or errors. Run it from its own goroutine; Close unblocks the
// pending read.
func (l *Link) ReadFrames(fn func(Frame)) {
	buf := make([]byte, 64)
	var tail []byte
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			debug.Log("serial", "read: %v", err)
			return
		}
		if n == 0 {
			return
		}
		var frames []Frame
		tail = append(tail, buf[:n]...)
		frames, tail = ParseFrames(tail)
		for _, f := range frames {
			fn(f)
		}
	}
}

func (l *Link) Close() {
	if err := l.port.Close(); err != nil {
		debug.Log("serial", "close: %v", err)
	}
}
