package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap is the keyboard surface. It doubles as the help model, so the
// footer always matches what Update actually handles.
type keyMap struct {
	Record    key.Binding
	Play      key.Binding
	Stop      key.Binding
	Mute      key.Binding
	Quantize  key.Binding
	Clear     key.Binding
	Undo      key.Binding
	Redo      key.Binding
	UndoClear key.Binding
	RedoClear key.Binding

	Track     key.Binding
	NextTrack key.Binding
	PrevTrack key.Binding

	Edit      key.Binding
	Exit      key.Binding
	Confirm   key.Binding
	Left      key.Binding
	Right     key.Binding
	NextNote  key.Binding
	PrevNote  key.Binding
	MoveStart key.Binding
	Length    key.Binding
	Pitch     key.Binding

	LoopLeft  key.Binding
	LoopRight key.Binding
	LoopUndo  key.Binding
	LoopRedo  key.Binding

	TempoUp   key.Binding
	TempoDown key.Binding

	Help key.Binding
	Quit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Record:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "record")),
		Play:      key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play")),
		Stop:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop all")),
		Mute:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mute")),
		Quantize:  key.NewBinding(key.WithKeys("Q"), key.WithHelp("Q", "quantize")),
		Clear:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear track")),
		Undo:      key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "undo")),
		Redo:      key.NewBinding(key.WithKeys("U"), key.WithHelp("U", "redo")),
		UndoClear: key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "undo clear")),
		RedoClear: key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "redo clear")),

		Track:     key.NewBinding(key.WithKeys("1", "2", "3", "4"), key.WithHelp("1-4", "track")),
		NextTrack: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next track")),
		PrevTrack: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev track")),

		Edit:      key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		Exit:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "exit edit")),
		Confirm:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "grab note")),
		Left:      key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/l", "drag")),
		Right:     key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("", "")),
		NextNote:  key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/k", "note")),
		PrevNote:  key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("", "")),
		MoveStart: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "move start")),
		Length:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "length")),
		Pitch:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pitch")),

		LoopLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[/]", "loop start")),
		LoopRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("", "")),
		LoopUndo:  key.NewBinding(key.WithKeys("{"), key.WithHelp("{/}", "loop start undo")),
		LoopRedo:  key.NewBinding(key.WithKeys("}"), key.WithHelp("", "")),

		TempoUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "tempo")),
		TempoDown: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("", "")),

		Help: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp is the one line footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Record, k.Play, k.Edit, k.Undo, k.Track, k.Help, k.Quit}
}

// FullHelp is the expanded footer, column per concern.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Record, k.Play, k.Stop, k.Mute, k.Quantize, k.TempoUp},
		{k.Undo, k.Redo, k.UndoClear, k.RedoClear, k.Clear},
		{k.Track, k.NextTrack, k.PrevTrack, k.LoopLeft, k.LoopUndo},
		{k.Edit, k.Exit, k.Confirm, k.Left, k.NextNote},
		{k.MoveStart, k.Length, k.Pitch},
	}
}
