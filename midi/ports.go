// Package midi bridges the engine to hardware through the rtmidi
// backend: a wire codec for the looper's event model and a port
// registry that opens lazily and recovers from unplugged devices.
package midi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/Lytrix/MidiLooper-sub000/debug"
	"github.com/Lytrix/MidiLooper-sub000/looper"
)

// scanTimeout bounds every port enumeration. The backend can hang a
// scan when a device disappears mid enumeration.
const scanTimeout = 3 * time.Second

func scanIns() []drivers.In {
	ch := make(chan []drivers.In, 1)
	go func() { ch <- gomidi.GetInPorts() }()
	select {
	case ports := <-ch:
		return ports
	case <-time.After(scanTimeout):
		return nil
	}
}

func scanOuts() []drivers.Out {
	ch := make(chan []drivers.Out, 1)
	go func() { ch <- gomidi.GetOutPorts() }()
	select {
	case ports := <-ch:
		return ports
	case <-time.After(scanTimeout):
		return nil
	}
}

// matchIn picks the first input whose name contains want, ignoring
// case. An empty want takes the first port.
func matchIn(ports []drivers.In, want string) drivers.In {
	if len(ports) == 0 {
		return nil
	}
	if want == "" {
		return ports[0]
	}
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(want)) {
			return p
		}
	}
	return nil
}

func matchOut(ports []drivers.Out, want string) drivers.Out {
	if len(ports) == 0 {
		return nil
	}
	if want == "" {
		return ports[0]
	}
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p.String()), strings.ToLower(want)) {
			return p
		}
	}
	return nil
}

// Ports lists the names of the connected MIDI ports.
func Ports() (ins, outs []string) {
	for _, p := range scanIns() {
		ins = append(ins, p.String())
	}
	for _, p := range scanOuts() {
		outs = append(outs, p.String())
	}
	return ins, outs
}

// outHandle caches one resolved output. A nil send is a negative entry:
// the port was missing at open time and the next Rescan retries it, so
// an absent device does not cost a port scan per note.
type outHandle struct {
	port string
	send func(gomidi.Message) error
}

// listener is one registered input route. stop is nil while the port is
// absent; Rescan binds it when the device shows up.
type listener struct {
	want string
	fn   func(gomidi.Message)
	port string
	stop func()
}

// Manager owns the open MIDI handles. Outputs open lazily on first
// send, inputs bind when their port is present, and Rescan diffs the
// live port set so unplugging and replugging a device recovers without
// a restart.
type Manager struct {
	mu        sync.RWMutex
	senders   map[string]outHandle
	listeners []*listener
}

func NewManager() *Manager {
	return &Manager{senders: make(map[string]outHandle)}
}

// sender returns the send function for the output matching want,
// opening the port on first use. Missing ports come back nil and the
// caller drops the message.
func (m *Manager) sender(want string) func(gomidi.Message) error {
	m.mu.RLock()
	if h, ok := m.senders[want]; ok {
		m.mu.RUnlock()
		return h.send
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.senders[want]; ok {
		return h.send
	}
	port := matchOut(scanOuts(), want)
	if port == nil {
		m.senders[want] = outHandle{}
		return nil
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		debug.Log("midi", "open output %s: %v", port.String(), err)
		m.senders[want] = outHandle{}
		return nil
	}
	debug.Log("midi", "output open on %s", port.String())
	m.senders[want] = outHandle{port: port.String(), send: send}
	return send
}

// Listen routes messages from the input matching want into fn. The
// listener is registered before binding and Rescan retries the binding,
// so an error here means the port is absent right now, not that the
// route is lost.
func (m *Manager) Listen(want string, fn func(gomidi.Message)) error {
	l := &listener{want: want, fn: fn}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
	return m.bind(l)
}

func (m *Manager) bind(l *listener) error {
	in := matchIn(scanIns(), l.want)
	if in == nil {
		return fault.New(fmt.Sprintf("no midi input matching %q", l.want))
	}
	stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
		l.fn(msg)
	})
	if err != nil {
		return fault.Wrap(err, fmsg.With("could not open midi input"))
	}
	m.mu.Lock()
	l.port = in.String()
	l.stop = stop
	m.mu.Unlock()
	debug.Log("midi", "listening on %s", in.String())
	return nil
}

// Rescan diffs the live port set against the open handles. Handles
// whose port has gone are dropped, unbound listeners and negative
// sender entries are retried.
func (m *Manager) Rescan() {
	inSeen := make(map[string]bool)
	for _, p := range scanIns() {
		inSeen[p.String()] = true
	}
	outSeen := make(map[string]bool)
	for _, p := range scanOuts() {
		outSeen[p.String()] = true
	}

	m.mu.Lock()
	var stops []func()
	var rebind []*listener
	for _, l := range m.listeners {
		if l.stop != nil && !inSeen[l.port] {
			debug.Log("midi", "input %s went away", l.port)
			stops = append(stops, l.stop)
			l.stop = nil
			l.port = ""
		}
		if l.stop == nil {
			rebind = append(rebind, l)
		}
	}
	for want, h := range m.senders {
		if h.send == nil || !outSeen[h.port] {
			if h.send != nil {
				debug.Log("midi", "output %s went away", h.port)
			}
			delete(m.senders, want)
		}
	}
	m.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	for _, l := range rebind {
		// still-absent ports just stay unbound until the next pass
		_ = m.bind(l)
	}
}

// Watch rescans the port set until ctx ends.
func (m *Manager) Watch(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Rescan()
		}
	}
}

// Close stops the listeners and shuts the driver down.
func (m *Manager) Close() {
	m.mu.Lock()
	var stops []func()
	for _, l := range m.listeners {
		if l.stop != nil {
			stops = append(stops, l.stop)
		}
	}
	m.listeners = nil
	m.senders = make(map[string]outHandle)
	m.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	gomidi.CloseDriver()
}

// Out is the engine's output bound to one configured port name. Every
// call resolves through the manager, so the device can arrive or return
// after startup and playback follows it.
type Out struct {
	m    *Manager
	want string
}

// OpenOut binds an output to the port matching want. The port itself
// opens lazily on the first message.
func (m *Manager) OpenOut(want string) *Out {
	return &Out{m: m, want: want}
}

func (o *Out) emit(ev looper.Event) {
	send := o.m.sender(o.want)
	if send == nil {
		return
	}
	msg, ok := ToWire(ev)
	if !ok {
		return
	}
	if err := send(msg); err != nil {
		debug.Log("midi", "send %s: %v", ev.Type, err)
	}
}

func (o *Out) NoteOn(channel, note, velocity uint8) {
	o.emit(looper.NoteOnEvent(0, channel, note, velocity))
}

func (o *Out) NoteOff(channel, note uint8) {
	o.emit(looper.NoteOffEvent(0, channel, note))
}

func (o *Out) ControlChange(channel, controller, value uint8) {
	o.emit(looper.ControlChangeEvent(0, channel, controller, value))
}

func (o *Out) PitchBend(channel uint8, bend int16) {
	o.emit(looper.PitchBendEvent(0, channel, bend))
}

func (o *Out) ProgramChange(channel, program uint8) {
	o.emit(looper.ProgramChangeEvent(0, channel, program))
}

// Route returns a listener callback feeding a wire stream into the
// engine. Realtime messages drive the clock and transport directly,
// channel voice messages become engine events.
func Route(eng *looper.Engine) func(gomidi.Message) {
	clk := eng.Clock()
	return func(msg gomidi.Message) {
		switch {
		case msg.Is(gomidi.TimingClockMsg):
			clk.Pulse(time.Now())
		case msg.Is(gomidi.StartMsg):
			eng.TransportStart()
		case msg.Is(gomidi.StopMsg):
			eng.TransportStop()
		case msg.Is(gomidi.ContinueMsg):
			eng.TransportContinue()
		default:
			if ev, ok := FromWire(msg, clk.Now()); ok {
				eng.HandleEvent(ev)
			}
		}
	}
}
