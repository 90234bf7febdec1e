package keybindings

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/darkhz/btkbd/internal/hid"
)

func TestStroke(t *testing.T) {
	kb := NewKeybindings()

	tests := []struct {
		name  string
		event *tcell.EventKey
		want  hid.Stroke
		ok    bool
	}{
		{
			name:  "letter",
			event: tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone),
			want:  hid.Stroke{Key: hid.KeyA},
			ok:    true,
		},
		{
			name:  "uppercase letter",
			event: tcell.NewEventKey(tcell.KeyRune, 'A', tcell.ModShift),
			want:  hid.Stroke{Modifier: hid.ModLeftShift, Key: hid.KeyA},
			ok:    true,
		},
		{
			name:  "alt letter",
			event: tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModAlt),
			want:  hid.Stroke{Modifier: hid.ModLeftAlt, Key: hid.KeyA + 'x' - 'a'},
			ok:    true,
		},
		{
			name:  "ctrl letter",
			event: tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl),
			want:  hid.Stroke{Modifier: hid.ModLeftCtrl, Key: hid.KeyA + 2},
			ok:    true,
		},
		{
			name:  "enter",
			event: tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone),
			want:  hid.Stroke{Key: hid.KeyEnter},
			ok:    true,
		},
		{
			name:  "shift tab",
			event: tcell.NewEventKey(tcell.KeyBacktab, 0, tcell.ModNone),
			want:  hid.Stroke{Modifier: hid.ModLeftShift, Key: hid.KeyTab},
			ok:    true,
		},
		{
			name:  "function key",
			event: tcell.NewEventKey(tcell.KeyF5, 0, tcell.ModNone),
			want:  hid.Stroke{Key: hid.KeyF1 + 4},
			ok:    true,
		},
		{
			name:  "ctrl arrow",
			event: tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModCtrl),
			want:  hid.Stroke{Modifier: hid.ModLeftCtrl, Key: hid.KeyLeft},
			ok:    true,
		},
		{
			name:  "untypable rune",
			event: tcell.NewEventKey(tcell.KeyRune, '€', tcell.ModNone),
		},
		{
			name:  "unmapped key",
			event: tcell.NewEventKey(tcell.KeyF30, 0, tcell.ModNone),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := kb.Stroke(test.event)
			if ok != test.ok {
				t.Fatalf("ok = %v, want %v", ok, test.ok)
			}

			if ok && got != test.want {
				t.Errorf("stroke = %+v, want %+v", got, test.want)
			}
		})
	}
}

func TestKey(t *testing.T) {
	kb := NewKeybindings()

	if got := kb.Key(tcell.NewEventKey(tcell.KeyCtrlRightSq, 0, tcell.ModCtrl)); got != KeyQuit {
		t.Errorf("key = %q, want %q", got, KeyQuit)
	}

	if got := kb.Key(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)); got != "" {
		t.Errorf("key = %q, want none", got)
	}
}

func TestValidate(t *testing.T) {
	kb := NewKeybindings()

	if err := kb.Validate(map[string]string{"Quit": "ctrl+q", "Pause": "alt+p"}); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if got := kb.Key(tcell.NewEventKey(tcell.KeyCtrlQ, 0, tcell.ModCtrl)); got != KeyQuit {
		t.Errorf("ctrl+q = %q, want %q", got, KeyQuit)
	}

	if got := kb.Key(tcell.NewEventKey(tcell.KeyRune, 'p', tcell.ModAlt)); got != KeyPause {
		t.Errorf("alt+p = %q, want %q", got, KeyPause)
	}

	if got := kb.Key(tcell.NewEventKey(tcell.KeyCtrlRightSq, 0, tcell.ModCtrl)); got != "" {
		t.Errorf("old quit binding = %q, want none", got)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		kbMap  map[string]string
		errMsg string
	}{
		{
			name:   "unknown type",
			kbMap:  map[string]string{"Launch": "ctrl+l"},
			errMsg: "Invalid key type",
		},
		{
			name:   "two keys",
			kbMap:  map[string]string{"Quit": "a+b"},
			errMsg: "More than one key",
		},
		{
			name:   "no key",
			kbMap:  map[string]string{"Quit": "ctrl"},
			errMsg: "No key specified",
		},
		{
			name:   "conflict",
			kbMap:  map[string]string{"Quit": "alt+p", "Pause": "alt+p"},
			errMsg: "will conflict",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := NewKeybindings().Validate(test.kbMap)
			if err == nil || !strings.Contains(err.Error(), test.errMsg) {
				t.Fatalf("validate = %v, want error containing %q", err, test.errMsg)
			}
		})
	}
}
