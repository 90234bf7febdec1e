package hid

import (
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/darkhz/btkbd/internal/errorkinds"
)

// The modifier bits of the report's modifier byte.
const (
	ModLeftCtrl   byte = 0x01
	ModLeftShift  byte = 0x02
	ModLeftAlt    byte = 0x04
	ModLeftGUI    byte = 0x08
	ModRightCtrl  byte = 0x10
	ModRightShift byte = 0x20
	ModRightAlt   byte = 0x40
	ModRightGUI   byte = 0x80
)

// Usage IDs of the keyboard/keypad usage page that are not
// covered by the ASCII table.
const (
	KeyNone      byte = 0x00
	KeyA         byte = 0x04
	Key1         byte = 0x1E
	Key0         byte = 0x27
	KeyEnter     byte = 0x28
	KeyEscape    byte = 0x29
	KeyBackspace byte = 0x2A
	KeyTab       byte = 0x2B
	KeySpace     byte = 0x2C
	KeyCapsLock  byte = 0x39
	KeyF1        byte = 0x3A
	KeyF12       byte = 0x45
	KeyPrint     byte = 0x46
	KeyScroll    byte = 0x47
	KeyPause     byte = 0x48
	KeyInsert    byte = 0x49
	KeyHome      byte = 0x4A
	KeyPageUp    byte = 0x4B
	KeyDelete    byte = 0x4C
	KeyEnd       byte = 0x4D
	KeyPageDown  byte = 0x4E
	KeyRight     byte = 0x4F
	KeyLeft      byte = 0x50
	KeyDown      byte = 0x51
	KeyUp        byte = 0x52
	KeyMenu      byte = 0x65
)

// Stroke is a single key press: one key code and its modifiers.
type Stroke struct {
	Modifier byte
	Key      byte
}

// Report returns the input report for the stroke.
func (s Stroke) Report() Report {
	r := Release()
	r[2] = s.Modifier
	r[4] = s.Key

	return r
}

// Keys returns the key code slots of the stroke.
func (s Stroke) Keys() []byte {
	keys := make([]byte, KeySlots)
	keys[0] = s.Key

	return keys
}

// punctuation maps the unshifted and shifted characters of US layout keys.
var punctuation = map[rune]Stroke{
	' ': {0, KeySpace}, '\n': {0, KeyEnter}, '\t': {0, KeyTab},
	'-': {0, 0x2D}, '_': {ModLeftShift, 0x2D},
	'=': {0, 0x2E}, '+': {ModLeftShift, 0x2E},
	'[': {0, 0x2F}, '{': {ModLeftShift, 0x2F},
	']': {0, 0x30}, '}': {ModLeftShift, 0x30},
	'\\': {0, 0x31}, '|': {ModLeftShift, 0x31},
	';': {0, 0x33}, ':': {ModLeftShift, 0x33},
	'\'': {0, 0x34}, '"': {ModLeftShift, 0x34},
	'`': {0, 0x35}, '~': {ModLeftShift, 0x35},
	',': {0, 0x36}, '<': {ModLeftShift, 0x36},
	'.': {0, 0x37}, '>': {ModLeftShift, 0x37},
	'/': {0, 0x38}, '?': {ModLeftShift, 0x38},
}

// shiftedDigits holds the characters typed with Shift and 1..0.
const shiftedDigits = "!@#$%^&*()"

// namedKeys maps title-cased key names to their strokes.
// Modifier-only entries have a zero Key.
var namedKeys = map[string]Stroke{
	"Ctrl":        {Modifier: ModLeftCtrl},
	"Shift":       {Modifier: ModLeftShift},
	"Alt":         {Modifier: ModLeftAlt},
	"Gui":         {Modifier: ModLeftGUI},
	"Rightctrl":   {Modifier: ModRightCtrl},
	"Rightshift":  {Modifier: ModRightShift},
	"Rightalt":    {Modifier: ModRightAlt},
	"Rightgui":    {Modifier: ModRightGUI},
	"Enter":       {Key: KeyEnter},
	"Escape":      {Key: KeyEscape},
	"Backspace":   {Key: KeyBackspace},
	"Tab":         {Key: KeyTab},
	"Space":       {Key: KeySpace},
	"Plus":        {Modifier: ModLeftShift, Key: 0x2E},
	"Capslock":    {Key: KeyCapsLock},
	"Printscreen": {Key: KeyPrint},
	"Scrolllock":  {Key: KeyScroll},
	"Pause":       {Key: KeyPause},
	"Insert":      {Key: KeyInsert},
	"Home":        {Key: KeyHome},
	"Pageup":      {Key: KeyPageUp},
	"Delete":      {Key: KeyDelete},
	"End":         {Key: KeyEnd},
	"Pagedown":    {Key: KeyPageDown},
	"Right":       {Key: KeyRight},
	"Left":        {Key: KeyLeft},
	"Down":        {Key: KeyDown},
	"Up":          {Key: KeyUp},
	"Menu":        {Key: KeyMenu},
}

// translateKeys maps alternative key names to the names in namedKeys.
var translateKeys = map[string]string{
	"Control":    "Ctrl",
	"Option":     "Alt",
	"Altgr":      "Rightalt",
	"Super":      "Gui",
	"Meta":       "Gui",
	"Win":        "Gui",
	"Cmd":        "Gui",
	"Esc":        "Escape",
	"Return":     "Enter",
	"Del":        "Delete",
	"Ins":        "Insert",
	"Pgup":       "Pageup",
	"Pgdn":       "Pagedown",
	"Backspace2": "Backspace",
	"Print":      "Printscreen",
}

func init() {
	for i := range KeyF12 - KeyF1 + 1 {
		namedKeys["F"+strconv.Itoa(int(i)+1)] = Stroke{Key: KeyF1 + i}
	}
}

// RuneStroke returns the stroke that types the provided character
// on a US keyboard layout.
func RuneStroke(r rune) (Stroke, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return Stroke{Key: KeyA + byte(r-'a')}, true

	case r >= 'A' && r <= 'Z':
		return Stroke{Modifier: ModLeftShift, Key: KeyA + byte(r-'A')}, true

	case r == '0':
		return Stroke{Key: Key0}, true

	case r >= '1' && r <= '9':
		return Stroke{Key: Key1 + byte(r-'1')}, true
	}

	if idx := strings.IndexRune(shiftedDigits, r); idx >= 0 {
		return Stroke{Modifier: ModLeftShift, Key: Key1 + byte(idx)}, true
	}

	s, ok := punctuation[r]

	return s, ok
}

// NamedStroke returns the stroke for a key name such as "Enter" or "PgUp".
// The lookup is case-insensitive.
func NamedStroke(name string) (Stroke, bool) {
	name = cases.Title(language.Und).String(name)
	if translated, ok := translateKeys[name]; ok {
		name = translated
	}

	s, ok := namedKeys[name]

	return s, ok
}

// TextStrokes converts text into a sequence of strokes. Accented
// characters are typed without their diacritics.
func TextStrokes(text string) ([]Stroke, error) {
	strokes := make([]Stroke, 0, len(text))

	for _, r := range norm.NFKD.String(text) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}

		s, ok := RuneStroke(r)
		if !ok {
			return nil, invalidKey(string(r), "Character cannot be typed")
		}

		strokes = append(strokes, s)
	}

	return strokes, nil
}

// ParseChord parses a key chord, for example "ctrl+alt+delete" or "shift+a".
func ParseChord(chord string) (Stroke, error) {
	var stroke Stroke
	var keys int

	tokens := strings.FieldsFunc(chord, func(c rune) bool {
		return unicode.IsSpace(c) || c == '+'
	})

	for _, token := range tokens {
		if runewidth.StringWidth(token) == 1 && utf8.RuneCountInString(token) == 1 {
			r, _ := utf8.DecodeRuneInString(token)

			s, ok := RuneStroke(r)
			if !ok {
				return Stroke{}, invalidKey(chord, "Invalid key '"+token+"'")
			}

			stroke.Modifier |= s.Modifier
			stroke.Key = s.Key
			keys++

			continue
		}

		s, ok := NamedStroke(token)
		if !ok {
			return Stroke{}, invalidKey(chord, "Invalid key name '"+token+"'")
		}

		stroke.Modifier |= s.Modifier
		if s.Key != KeyNone {
			stroke.Key = s.Key
			keys++
		}
	}

	switch {
	case keys > 1:
		return Stroke{}, invalidKey(chord, "More than one key entered")

	case keys == 0 && stroke.Modifier == 0:
		return Stroke{}, invalidKey(chord, "No key specified")
	}

	return stroke, nil
}

func invalidKey(key, message string) error {
	return fault.Wrap(errorkinds.ErrInvalidKey,
		fctx.With(context.Background(),
			"error_at", "hid-parse-key",
			"key", key,
		),
		ftag.With(ftag.InvalidArgument),
		fmsg.With(message),
	)
}
