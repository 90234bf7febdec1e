// Package app is the interactive relay: it captures the keys typed in the
// terminal and types them on the host connected to the keyboard daemon.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/darkhz/tview"
	"github.com/gdamore/tcell/v2"
	"go.uber.org/atomic"

	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/hid"
	"github.com/darkhz/btkbd/ui/keybindings"
	"github.com/darkhz/btkbd/ui/theme"
)

// Sender sends keyboard reports to the connected host.
type Sender interface {
	SendKeys(modifier byte, keys []byte) error
}

// strokeQueueSize is the number of strokes that can wait to be sent.
const strokeQueueSize = 64

// Application holds the relay application and its views.
type Application struct {
	sender Sender
	kb     *keybindings.Keybindings

	strokes chan hid.Stroke
	paused  bool
	sent    atomic.Uint64

	history *tview.TextView
	status  *statusBar
	layout  *tview.Flex

	*tview.Application
}

// NewApplication returns a new relay application.
func NewApplication(sender Sender, kb *keybindings.Keybindings) *Application {
	if kb == nil {
		kb = keybindings.NewKeybindings()
	}

	a := &Application{
		sender:      sender,
		kb:          kb,
		strokes:     make(chan hid.Stroke, strokeQueueSize),
		Application: tview.NewApplication(),
	}

	a.history = tview.NewTextView()
	a.history.SetDynamicColors(true)
	a.history.SetWrap(true)
	a.history.SetBorder(true)
	a.history.SetTitle("[ Keyboard relay ]")
	a.history.SetTextColor(theme.GetColor(theme.ThemeText))
	a.history.SetBorderColor(theme.GetColor(theme.ThemeBorder))
	a.history.SetBackgroundColor(theme.GetColor(theme.ThemeBackground))

	a.status = newStatusBar(a)

	a.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.history, 0, 1, false).
		AddItem(a.status, 1, 0, false)
	a.layout.SetBackgroundColor(theme.GetColor(theme.ThemeBackground))

	return a
}

// Start starts the relay, and blocks until the user quits or the context is canceled.
func (a *Application) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.SetInputCapture(a.inputCapture)

	go a.sendStrokes(ctx)
	go a.status.start(ctx)
	go func() {
		<-ctx.Done()
		a.Stop()
	}()

	a.status.InfoMessage(a.helpText(), true)

	return a.SetRoot(a.layout, true).Run()
}

// Sent returns the number of strokes that were typed on the host.
func (a *Application) Sent() uint64 {
	return a.sent.Load()
}

// inputCapture handles the relay keybindings, and queues all other keys
// to be typed on the host.
func (a *Application) inputCapture(event *tcell.EventKey) *tcell.EventKey {
	switch a.kb.Key(event) {
	case keybindings.KeyQuit:
		a.Stop()
		return nil

	case keybindings.KeyPause:
		a.togglePause()
		return nil

	case keybindings.KeyClear:
		a.history.Clear()
		return nil

	case keybindings.KeyHelp:
		a.status.InfoMessage(a.helpText(), false)
		return nil
	}

	if a.paused {
		return nil
	}

	stroke, ok := a.kb.Stroke(event)
	if !ok {
		a.appendHistory(theme.ColorWrap(theme.ThemeUntypable, "<"+event.Name()+">", "::d"))
		return nil
	}

	select {
	case a.strokes <- stroke:
		a.appendHistory(strokeName(stroke, event))

	default:
		a.status.ErrorMessage(errors.New("too many keys are waiting to be sent"))
	}

	return nil
}

// togglePause stops or resumes relaying keys.
func (a *Application) togglePause() {
	a.paused = !a.paused
	if a.paused {
		a.status.InfoMessage(theme.ColorWrap(theme.ThemePaused, "Paused")+", press "+a.bindingName(keybindings.KeyPause)+" to resume", true)
		return
	}

	a.status.InfoMessage(a.helpText(), true)
}

// sendStrokes types the queued strokes on the host. Each stroke is
// a press report followed by a release report.
func (a *Application) sendStrokes(ctx context.Context) {
	release := make([]byte, hid.KeySlots)

	for {
		select {
		case <-ctx.Done():
			return

		case stroke := <-a.strokes:
			err := a.sender.SendKeys(stroke.Modifier, stroke.Keys())
			if err == nil {
				err = a.sender.SendKeys(0, release)
			}

			if err != nil {
				a.status.ErrorMessage(err)
				continue
			}

			a.sent.Inc()
		}
	}
}

// appendHistory appends the text to the history of typed keys.
func (a *Application) appendHistory(text string) {
	a.history.Write([]byte(text + " "))
}

// helpText returns the relay keybindings.
func (a *Application) helpText() string {
	var sb strings.Builder

	for i, key := range []keybindings.Key{
		keybindings.KeyQuit,
		keybindings.KeyPause,
		keybindings.KeyClear,
		keybindings.KeyHelp,
	} {
		if i > 0 {
			sb.WriteString(", ")
		}

		sb.WriteString(theme.ColorWrap(theme.ThemeStatusInfo, a.kb.Data(key).Title))
		sb.WriteString(": ")
		sb.WriteString(a.bindingName(key))
	}

	return sb.String()
}

// bindingName returns the name of the key bound to the relay operation.
func (a *Application) bindingName(key keybindings.Key) string {
	return a.kb.Name(a.kb.Data(key).Kb)
}

// strokeName returns the colored name of the stroke for the history.
func strokeName(stroke hid.Stroke, event *tcell.EventKey) string {
	if event.Key() == tcell.KeyRune && stroke.Modifier&^hid.ModLeftShift == 0 {
		return theme.ColorWrap(theme.ThemeKey, string(event.Rune()), "::-")
	}

	return theme.ColorWrap(theme.ThemeModifier, "<"+event.Name()+">")
}

// sendError returns the message of a send error.
func sendError(err error) string {
	switch {
	case errors.Is(err, errorkinds.ErrNotConnected):
		return "No host is connected to the keyboard"

	case errors.Is(err, errorkinds.ErrInvalidReportLength):
		return "The keyboard rejected the report"
	}

	return err.Error()
}
