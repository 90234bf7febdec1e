package hid

import (
	"bytes"
	"errors"
	"testing"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

func TestRuneStroke(t *testing.T) {
	tests := map[rune]Stroke{
		'a':  {0, 0x04},
		'z':  {0, 0x1d},
		'A':  {ModLeftShift, 0x04},
		'1':  {0, 0x1e},
		'9':  {0, 0x26},
		'0':  {0, 0x27},
		'!':  {ModLeftShift, 0x1e},
		')':  {ModLeftShift, 0x27},
		' ':  {0, KeySpace},
		'\n': {0, KeyEnter},
		'?':  {ModLeftShift, 0x38},
		'~':  {ModLeftShift, 0x35},
	}

	for r, want := range tests {
		got, ok := RuneStroke(r)
		if !ok || got != want {
			t.Errorf("RuneStroke(%q) = %+v, %v; want %+v", r, got, ok, want)
		}
	}

	if _, ok := RuneStroke('€'); ok {
		t.Error("RuneStroke('€') should not be typeable")
	}
}

func TestStrokeReport(t *testing.T) {
	r := Stroke{Modifier: ModLeftShift, Key: 0x04}.Report()
	want := []byte{0xa1, 0x01, 0x02, 0x00, 0x04, 0, 0, 0, 0, 0}

	if !bytes.Equal(r.Bytes(), want) {
		t.Errorf("Report = % x, want % x", r.Bytes(), want)
	}
}

func TestTextStrokes(t *testing.T) {
	strokes, err := TextStrokes("Hé!")
	if err != nil {
		t.Fatalf("TextStrokes returned error: %v", err)
	}

	want := []Stroke{
		{ModLeftShift, 0x0b},
		{0, 0x08},
		{ModLeftShift, 0x1e},
	}

	if len(strokes) != len(want) {
		t.Fatalf("got %d strokes, want %d", len(strokes), len(want))
	}

	for i := range want {
		if strokes[i] != want[i] {
			t.Errorf("stroke %d = %+v, want %+v", i, strokes[i], want[i])
		}
	}

	if _, err := TextStrokes("日本"); !errors.Is(err, errorkinds.ErrInvalidKey) {
		t.Errorf("TextStrokes(日本) err = %v, want ErrInvalidKey", err)
	}
}

func TestParseChord(t *testing.T) {
	tests := []struct {
		chord string
		want  Stroke
	}{
		{"a", Stroke{0, 0x04}},
		{"enter", Stroke{0, KeyEnter}},
		{"ctrl+alt+delete", Stroke{ModLeftCtrl | ModLeftAlt, KeyDelete}},
		{"Shift+a", Stroke{ModLeftShift, 0x04}},
		{"ctrl + c", Stroke{ModLeftCtrl, 0x06}},
		{"super", Stroke{Modifier: ModLeftGUI}},
		{"PgUp", Stroke{0, KeyPageUp}},
		{"f5", Stroke{0, KeyF1 + 4}},
		{"F12", Stroke{0, KeyF12}},
		{"ctrl+plus", Stroke{ModLeftCtrl | ModLeftShift, 0x2e}},
	}

	for _, tt := range tests {
		got, err := ParseChord(tt.chord)
		if err != nil {
			t.Errorf("ParseChord(%q) returned error: %v", tt.chord, err)
			continue
		}

		if got != tt.want {
			t.Errorf("ParseChord(%q) = %+v, want %+v", tt.chord, got, tt.want)
		}
	}
}

func TestParseChordErrors(t *testing.T) {
	for _, chord := range []string{"", "a+b", "ctrl+nosuchkey", "enter+tab", "€"} {
		if _, err := ParseChord(chord); !errors.Is(err, errorkinds.ErrInvalidKey) {
			t.Errorf("ParseChord(%q) err = %v, want ErrInvalidKey", chord, err)
		}
	}
}
