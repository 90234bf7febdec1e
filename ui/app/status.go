package app

import (
	"context"
	"errors"
	"time"

	"github.com/darkhz/tview"

	"github.com/darkhz/btkbd/ui/theme"
)

// statusClearInterval is the interval after which a temporary
// message is replaced by the persistent one.
const statusClearInterval = 2 * time.Second

// statusBar displays the relay messages.
type statusBar struct {
	app     *Application
	msgchan chan message

	*tview.TextView
}

type message struct {
	text    string
	persist bool
}

func newStatusBar(app *Application) *statusBar {
	s := &statusBar{
		app:      app,
		msgchan:  make(chan message, 10),
		TextView: tview.NewTextView(),
	}

	s.SetDynamicColors(true)
	s.SetTextColor(theme.ContrastColor(theme.ThemeStatusBar))
	s.SetBackgroundColor(theme.GetColor(theme.ThemeStatusBar))

	return s
}

// InfoMessage sends an info message to the status bar.
// A persistent message is displayed until it is replaced by another one.
func (s *statusBar) InfoMessage(text string, persist bool) {
	select {
	case s.msgchan <- message{text, persist}:
	default:
	}
}

// ErrorMessage sends an error message to the status bar.
func (s *statusBar) ErrorMessage(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	select {
	case s.msgchan <- message{theme.ColorWrap(theme.ThemeStatusError, "Error: "+sendError(err)), false}:
	default:
	}
}

// start starts the message event loop.
func (s *statusBar) start(ctx context.Context) {
	var text string
	var cleared bool

	t := time.NewTicker(statusClearInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-s.msgchan:
			t.Reset(statusClearInterval)
			cleared = false

			if msg.persist {
				text = msg.text
			}

			s.app.QueueUpdateDraw(func() {
				s.SetText(msg.text)
			})

		case <-t.C:
			if cleared {
				continue
			}

			cleared = true

			s.app.QueueUpdateDraw(func() {
				s.SetText(text)
			})
		}
	}
}
