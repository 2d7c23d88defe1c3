package control

import "fmt"

// Wire protocol of the fader box. Both directions use the same framing:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts CMD plus payload, CKS is the XOR of everything from LEN
// through the payload. The box reports sensor traffic and the looper
// writes motor targets on the same line.
const (
	SOF0 = 0xA5
	SOF1 = 0x5A

	CmdFader    = 0x01 // box -> looper: fader id, position
	CmdButton   = 0x02 // box -> looper: button id, 1=down
	CmdEncoder  = 0x03 // box -> looper: encoder id, signed step delta
	CmdSetFader = 0x10 // looper -> box: fader id, motor target

	// maxPayload bounds a frame; a LEN past this is line noise and the
	// decoder resynchronizes on the next start marker.
	maxPayload = 16
)

// Frame is one decoded message.
type Frame struct {
	Cmd     byte
	Payload []byte
}

// Encode builds the on-wire representation.
func (f Frame) Encode() []byte {
	length := byte(len(f.Payload) + 1)
	cks := length ^ f.Cmd
	for _, b := range f.Payload {
		cks ^= b
	}
	out := []byte{SOF0, SOF1, length, f.Cmd}
	out = append(out, f.Payload...)
	return append(out, cks)
}

// ParseFrames scans buf for complete frames and returns them with the
// unconsumed tail; callers keep the tail and append the next read to
// it. Bytes before a start marker and frames with a bad length or
// checksum are skipped, so the decoder recovers from noise mid stream.
func ParseFrames(buf []byte) ([]Frame, []byte) {
	var frames []Frame
	for {
		// hunt for the start marker; a trailing SOF0 stays in the tail
		// because its pair may arrive with the next read
		i := 0
		for i < len(buf) && buf[i] != SOF0 {
			i++
		}
		buf = buf[i:]
		if len(buf) < 4 {
			return frames, buf
		}
		if buf[1] != SOF1 {
			buf = buf[1:]
			continue
		}

		length := int(buf[2])
		if length < 1 || length > maxPayload+1 {
			buf = buf[1:] // false marker, resync
			continue
		}
		total := 3 + length + 1 // sof pair, len byte, cmd+payload, checksum
		if len(buf) < total {
			return frames, buf
		}

		var cks byte
		for _, b := range buf[2 : total-1] {
			cks ^= b
		}
		if cks != buf[total-1] {
			buf = buf[1:] // corrupt frame, resync
			continue
		}

		frames = append(frames, Frame{
			Cmd:     buf[3],
			Payload: append([]byte(nil), buf[4:total-1]...),
		})
		buf = buf[total:]
	}
}

// InputFor translates a sensor frame into the control name the bindings
// use and its value. Fader and button values are raw, encoder deltas are
// signed. Frames that are not sensor reports return false.
func InputFor(f Frame) (string, int, bool) {
	if len(f.Payload) != 2 {
		return "", 0, false
	}
	switch f.Cmd {
	case CmdFader:
		return fmt.Sprintf("fader.%d", f.Payload[0]), int(f.Payload[1]), true
	case CmdButton:
		return fmt.Sprintf("btn.%d", f.Payload[0]), int(f.Payload[1]), true
	case CmdEncoder:
		return fmt.Sprintf("encoder.%d", f.Payload[0]), int(int8(f.Payload[1])), true
	}
	return "", 0, false
}
