package control

import (
	"reflect"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	frames := []Frame{
		{Cmd: CmdFader, Payload: []byte{0, 127}},
		{Cmd: CmdEncoder, Payload: []byte{1, 0xFF}},
		{Cmd: CmdSetFader, Payload: []byte{2, 64}},
	}
	var wire []byte
	for _, f := range frames {
		wire = append(wire, f.Encode()...)
	}
	got, rest := ParseFrames(wire)
	if len(rest) != 0 {
		t.Fatalf("leftover bytes = %v, want none", rest)
	}
	if !reflect.DeepEqual(got, frames) {
		t.Errorf("frames = %+v, want %+v", got, frames)
	}
}

func TestParseFramesResync(t *testing.T) {
	valid := Frame{Cmd: CmdButton, Payload: []byte{3, 1}}

	t.Run("garbage_prefix_skipped", func(t *testing.T) {
		wire := append([]byte{0x00, SOF0, 0x13, 0x7F}, valid.Encode()...)
		got, rest := ParseFrames(wire)
		if len(rest) != 0 {
			t.Fatalf("leftover bytes = %v, want none", rest)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], valid) {
			t.Errorf("frames = %+v, want just %+v", got, valid)
		}
	})

	t.Run("corrupt_checksum_dropped", func(t *testing.T) {
		bad := valid.Encode()
		bad[4]++ // flip a payload byte, checksum no longer matches
		wire := append(bad, valid.Encode()...)
		got, rest := ParseFrames(wire)
		if len(rest) != 0 {
			t.Fatalf("leftover bytes = %v, want none", rest)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], valid) {
			t.Errorf("frames = %+v, want the trailing good frame only", got)
		}
	})

	t.Run("absurd_length_dropped", func(t *testing.T) {
		wire := append([]byte{SOF0, SOF1, 0xFF, CmdFader}, valid.Encode()...)
		got, rest := ParseFrames(wire)
		if len(rest) != 0 {
			t.Fatalf("leftover bytes = %v, want none", rest)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], valid) {
			t.Errorf("frames = %+v, want the trailing good frame only", got)
		}
	})
}

func TestInputFor(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		control string
		value   int
		ok      bool
	}{
		{"fader", Frame{Cmd: CmdFader, Payload: []byte{2, 100}}, "fader.2", 100, true},
		{"button_down", Frame{Cmd: CmdButton, Payload: []byte{5, 1}}, "btn.5", 1, true},
		{"button_up", Frame{Cmd: CmdButton, Payload: []byte{5, 0}}, "btn.5", 0, true},
		{"encoder_negative", Frame{Cmd: CmdEncoder, Payload: []byte{0, 0xFF}}, "encoder.0", -1, true},
		{"motor_target_not_input", Frame{Cmd: CmdSetFader, Payload: []byte{0, 64}}, "", 0, false},
		{"short_payload", Frame{Cmd: CmdFader, Payload: []byte{1}}, "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			control, value, ok := InputFor(tt.frame)
			if control != tt.control || value != tt.value || ok != tt.ok {
				t.Errorf("InputFor(%+v) = %q, %d, %v; want %q, %d, %v",
					tt.frame, control, value, ok, tt.control, tt.value, tt.ok)
			}
		})
	}
}

func TestParseFramesSplitReads(t *testing.T) {
	f := Frame{Cmd: CmdFader, Payload: []byte{1, 42}}
	wire := f.Encode()

	t.Run("mid_frame_split", func(t *testing.T) {
		got, tail := ParseFrames(wire[:5])
		if len(got) != 0 {
			t.Fatalf("frames from a partial read = %+v, want none", got)
		}
		got, tail = ParseFrames(append(tail, wire[5:]...))
		if len(tail) != 0 {
			t.Fatalf("leftover bytes = %v, want none", tail)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], f) {
			t.Errorf("frames = %+v, want %+v", got, f)
		}
	})

	t.Run("lone_start_byte_kept", func(t *testing.T) {
		got, tail := ParseFrames(append(append([]byte(nil), wire...), SOF0))
		if len(got) != 1 {
			t.Fatalf("frames = %+v, want one", got)
		}
		if len(tail) != 1 || tail[0] != SOF0 {
			t.Fatalf("tail = %v, want the lone start byte", tail)
		}
		got, tail = ParseFrames(append(tail, wire[1:]...))
		if len(tail) != 0 {
			t.Fatalf("leftover bytes = %v, want none", tail)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0], f) {
			t.Errorf("frames = %+v, want %+v", got, f)
		}
	})
}
