// Package keybindings translates terminal key events into keyboard strokes,
// and holds the keybindings that control the relay itself.
package keybindings

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/darkhz/btkbd/internal/hid"
)

// Key describes the relay keybinding type.
type Key string

// The different relay keybinding types.
const (
	KeyQuit  Key = "Quit"
	KeyPause Key = "Pause"
	KeyClear Key = "Clear"
	KeyHelp  Key = "Help"
)

// KeyData stores the metadata for the key.
type KeyData struct {
	Title string
	Kb    Keybinding
}

// Keybinding stores the keybinding.
type Keybinding struct {
	Key  tcell.Key
	Rune rune
	Mod  tcell.ModMask
}

// Keybindings contains the relay keybindings, and the translation
// table of terminal keys to keyboard key codes.
type Keybindings struct {
	keyData       map[Key]*KeyData
	keys          map[Keybinding]Key
	translateKeys map[string]string
}

// specialKeys maps the non-character terminal keys to keyboard key codes.
var specialKeys = map[tcell.Key]hid.Stroke{
	tcell.KeyEnter:      {Key: hid.KeyEnter},
	tcell.KeyTab:        {Key: hid.KeyTab},
	tcell.KeyBacktab:    {Modifier: hid.ModLeftShift, Key: hid.KeyTab},
	tcell.KeyEscape:     {Key: hid.KeyEscape},
	tcell.KeyBackspace:  {Key: hid.KeyBackspace},
	tcell.KeyBackspace2: {Key: hid.KeyBackspace},
	tcell.KeyDelete:     {Key: hid.KeyDelete},
	tcell.KeyInsert:     {Key: hid.KeyInsert},
	tcell.KeyHome:       {Key: hid.KeyHome},
	tcell.KeyEnd:        {Key: hid.KeyEnd},
	tcell.KeyPgUp:       {Key: hid.KeyPageUp},
	tcell.KeyPgDn:       {Key: hid.KeyPageDown},
	tcell.KeyUp:         {Key: hid.KeyUp},
	tcell.KeyDown:       {Key: hid.KeyDown},
	tcell.KeyLeft:       {Key: hid.KeyLeft},
	tcell.KeyRight:      {Key: hid.KeyRight},
	tcell.KeyPrint:      {Key: hid.KeyPrint},
	tcell.KeyPause:      {Key: hid.KeyPause},
}

func init() {
	for i := range hid.KeyF12 - hid.KeyF1 + 1 {
		specialKeys[tcell.KeyF1+tcell.Key(i)] = hid.Stroke{Key: hid.KeyF1 + i}
	}
}

// NewKeybindings returns a new keybindings configuration.
func NewKeybindings() *Keybindings {
	k := &Keybindings{}

	k.initData()
	k.initKeys()

	return k
}

// Data returns the key data associated with the provided key.
func (k *Keybindings) Data(key Key) *KeyData {
	return k.keyData[key]
}

// Key returns the relay operation for the keyboard event, if any.
func (k *Keybindings) Key(event *tcell.EventKey) Key {
	ch := event.Rune()
	if event.Key() != tcell.KeyRune {
		ch = ' '
	}

	mod := event.Modifiers()
	if unicode.IsUpper(ch) && mod&tcell.ModShift != 0 {
		mod &^= tcell.ModShift
	}

	return k.keys[Keybinding{event.Key(), ch, mod}]
}

// Stroke translates the keyboard event into a keyboard stroke.
// It returns false if the key cannot be typed on the remote host.
func (k *Keybindings) Stroke(event *tcell.EventKey) (hid.Stroke, bool) {
	mod := modifiers(event.Modifiers())
	key := event.Key()

	switch {
	case key == tcell.KeyRune:
		s, ok := hid.RuneStroke(event.Rune())
		s.Modifier |= mod

		return s, ok

	case key >= tcell.KeyCtrlA && key <= tcell.KeyCtrlZ && event.Modifiers()&tcell.ModCtrl != 0:
		return hid.Stroke{
			Modifier: mod | hid.ModLeftCtrl,
			Key:      hid.KeyA + byte(key-tcell.KeyCtrlA),
		}, true
	}

	s, ok := specialKeys[key]
	s.Modifier |= mod

	return s, ok
}

// Name formats and returns the key's name.
func (k *Keybindings) Name(kb Keybinding) string {
	if kb.Key == tcell.KeyRune {
		keyname := string(kb.Rune)
		if kb.Rune == ' ' {
			keyname = "Space"
		}

		if kb.Mod&tcell.ModAlt != 0 {
			keyname = "Alt+" + keyname
		}

		return keyname
	}

	return tcell.NewEventKey(kb.Key, kb.Rune, kb.Mod).Name()
}

// Validate validates the keybindings from the configuration.
func (k *Keybindings) Validate(kbMap map[string]string) error {
	if len(kbMap) == 0 {
		return nil
	}

	keyNames := make(map[string]tcell.Key)
	for key, names := range tcell.KeyNames {
		keyNames[names] = key
	}

	for keyType, key := range kbMap {
		if err := k.checkBindings(keyType, key, keyNames); err != nil {
			return err
		}
	}

	keyErrors := make(map[Keybinding]string)

	for keyType, keydata := range k.keyData {
		for existing, data := range k.keyData {
			if data.Kb != keydata.Kb || existing == keyType {
				continue
			}

			if _, ok := keyErrors[keydata.Kb]; !ok {
				keyErrors[keydata.Kb] = fmt.Sprintf("- %s will override %s (%s)", keyType, existing, k.Name(keydata.Kb))
			}
		}
	}

	if len(keyErrors) > 0 {
		err := "Config: The following keybindings will conflict:\n"
		for _, ke := range keyErrors {
			err += ke + "\n"
		}

		return errors.New(strings.TrimRight(err, "\n"))
	}

	k.initKeys()

	return nil
}

// checkBindings validates the provided keybinding.
//
//gocyclo:ignore
func (k *Keybindings) checkBindings(keyType, key string, keyNames map[string]tcell.Key) error {
	var runes []rune
	var keys []tcell.Key

	if _, ok := k.keyData[Key(keyType)]; !ok {
		return fmt.Errorf("config: Invalid key type %s", keyType)
	}

	keybinding := Keybinding{
		Key:  tcell.KeyRune,
		Rune: ' ',
		Mod:  tcell.ModNone,
	}

	tokens := strings.FieldsFunc(key, func(c rune) bool {
		return unicode.IsSpace(c) || c == '+'
	})

	for _, token := range tokens {
		length := runewidth.StringWidth(token)
		if length > 1 {
			token = cases.Title(language.Und, cases.NoLower).String(token)
		} else if length == 1 {
			c, _ := utf8.DecodeRuneInString(token)

			keybinding.Rune = c
			runes = append(runes, keybinding.Rune)

			continue
		}

		if translated, ok := k.translateKeys[token]; ok {
			token = translated
		}

		switch token {
		case "Ctrl":
			keybinding.Mod |= tcell.ModCtrl

		case "Alt":
			keybinding.Mod |= tcell.ModAlt

		case "Shift":
			keybinding.Mod |= tcell.ModShift

		case "Space", "Plus":
			keybinding.Rune = ' '
			if token == "Plus" {
				keybinding.Rune = '+'
			}

			runes = append(runes, keybinding.Rune)

		default:
			if key, ok := keyNames[token]; ok {
				keybinding.Key = key
				keybinding.Rune = ' '
				keys = append(keys, keybinding.Key)
			}
		}
	}

	if keys != nil && runes != nil || len(runes) > 1 || len(keys) > 1 {
		return fmt.Errorf("config: More than one key entered for %s (%s)", keyType, key)
	}

	if keybinding.Mod&tcell.ModShift != 0 {
		keybinding.Rune = unicode.ToUpper(keybinding.Rune)

		if unicode.IsLetter(keybinding.Rune) {
			keybinding.Mod &^= tcell.ModShift
		}
	}

	if keybinding.Mod&tcell.ModCtrl != 0 {
		var modKey string

		switch {
		case len(keys) > 0:
			if key, ok := tcell.KeyNames[keybinding.Key]; ok {
				modKey = key
			}

		case len(runes) > 0:
			if keybinding.Rune == ' ' {
				modKey = "Space"
			} else {
				modKey = string(unicode.ToUpper(keybinding.Rune))
			}
		}

		if modKey != "" {
			modKey = "Ctrl-" + modKey
			if key, ok := keyNames[modKey]; ok {
				keybinding.Key = key
				keybinding.Rune = ' '
				keys = append(keys, keybinding.Key)
			}
		}
	}

	if keys == nil && runes == nil {
		return fmt.Errorf("config: No key specified or invalid keybinding for %s (%s)", keyType, key)
	}

	k.keyData[Key(keyType)].Kb = keybinding

	return nil
}

// modifiers converts terminal modifiers into keyboard modifiers.
func modifiers(mod tcell.ModMask) byte {
	var m byte

	if mod&tcell.ModShift != 0 {
		m |= hid.ModLeftShift
	}
	if mod&tcell.ModCtrl != 0 {
		m |= hid.ModLeftCtrl
	}
	if mod&tcell.ModAlt != 0 {
		m |= hid.ModLeftAlt
	}
	if mod&tcell.ModMeta != 0 {
		m |= hid.ModLeftGUI
	}

	return m
}

// initKeys stores the relay operation of each keybinding.
func (k *Keybindings) initKeys() {
	k.keys = make(map[Keybinding]Key, len(k.keyData))
	for keyName, key := range k.keyData {
		k.keys[key.Kb] = keyName
	}

	k.translateKeys = map[string]string{
		"Pgup":      "PgUp",
		"Pgdn":      "PgDn",
		"Pageup":    "PgUp",
		"Pagedown":  "PgDn",
		"Prtsc":     "Print",
		"Backspace": "Backspace2",
	}
}

// initData initializes and stores the keybindings configuration.
// The defaults are control characters that are rarely typed on a remote host.
func (k *Keybindings) initData() {
	k.keyData = map[Key]*KeyData{
		KeyQuit: {
			Title: "Quit",
			Kb:    Keybinding{tcell.KeyCtrlRightSq, ' ', tcell.ModCtrl},
		},
		KeyPause: {
			Title: "Pause",
			Kb:    Keybinding{tcell.KeyCtrlBackslash, ' ', tcell.ModCtrl},
		},
		KeyClear: {
			Title: "Clear",
			Kb:    Keybinding{tcell.KeyCtrlUnderscore, ' ', tcell.ModCtrl},
		},
		KeyHelp: {
			Title: "Help",
			Kb:    Keybinding{tcell.KeyF1, ' ', tcell.ModAlt},
		},
	}
}
