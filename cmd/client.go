package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/darkhz/btkbd/internal/config"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/hid"
	"github.com/darkhz/btkbd/internal/service"
	"github.com/darkhz/btkbd/ui/app"
)

// defaultKeyDelay is the default delay between two strokes.
const defaultKeyDelay = 20 * time.Millisecond

// clientCommands returns the commands that send keys to a running keyboard.
func clientCommands() []*cli.Command {
	delayFlag := &cli.DurationFlag{
		Name:    "delay",
		Aliases: []string{"d"},
		Value:   defaultKeyDelay,
		Usage:   "Specify the delay between two key strokes.",
	}

	return []*cli.Command{
		{
			Name:      "send",
			Usage:     "Press and release raw key codes.",
			ArgsUsage: "<keycode>...",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "modifier",
					Aliases: []string{"m"},
					Value:   "0",
					Usage:   "Specify the modifier bitmask. (For example, 0x02 for left shift)",
				},
			},
			Action: func(cliCtx *cli.Context) error {
				modifier, err := parseByte(cliCtx.String("modifier"))
				if err != nil {
					return err
				}

				keys, err := parseKeyCodes(cliCtx.Args().Slice())
				if err != nil {
					return err
				}

				return withClient(cliCtx, func(_ context.Context, _ *config.Config, client *service.Client) error {
					return stroke(client, modifier, keys)
				})
			},
		},
		{
			Name:      "press",
			Usage:     "Press key chords, like 'ctrl+alt+delete' or 'shift+a'.",
			ArgsUsage: "<chord>...",
			Flags:     []cli.Flag{delayFlag},
			Action: func(cliCtx *cli.Context) error {
				if cliCtx.NArg() == 0 {
					return invalidArgs("press", "No key chords specified")
				}

				strokes := make([]hid.Stroke, 0, cliCtx.NArg())
				for _, chord := range cliCtx.Args().Slice() {
					s, err := hid.ParseChord(chord)
					if err != nil {
						return err
					}

					strokes = append(strokes, s)
				}

				return withClient(cliCtx, func(ctx context.Context, _ *config.Config, client *service.Client) error {
					return typeStrokes(ctx, client, strokes, cliCtx.Duration("delay"), nil)
				})
			},
		},
		{
			Name:      "type",
			Usage:     "Type text on the connected host.",
			ArgsUsage: "<text>...",
			Flags: []cli.Flag{
				delayFlag,
				&cli.BoolFlag{
					Name:    "no-progress",
					Aliases: []string{"q"},
					Usage:   "Do not display the typing progress.",
				},
			},
			Action: func(cliCtx *cli.Context) error {
				text := strings.Join(cliCtx.Args().Slice(), " ")
				if text == "" {
					return invalidArgs("type", "No text specified")
				}

				strokes, err := hid.TextStrokes(text)
				if err != nil {
					return err
				}

				var bar *progressbar.ProgressBar
				if !cliCtx.Bool("no-progress") {
					bar = progressbar.NewOptions(len(strokes),
						progressbar.OptionSetDescription("Typing"),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowCount(),
						progressbar.OptionSetPredictTime(false),
						progressbar.OptionClearOnFinish(),
						progressbar.OptionThrottle(100*time.Millisecond),
					)
				}

				return withClient(cliCtx, func(ctx context.Context, _ *config.Config, client *service.Client) error {
					return typeStrokes(ctx, client, strokes, cliCtx.Duration("delay"), bar)
				})
			},
		},
		{
			Name:  "relay",
			Usage: "Type the keys pressed in the terminal on the connected host.",
			Action: func(cliCtx *cli.Context) error {
				return withClient(cliCtx, func(ctx context.Context, cfg *config.Config, client *service.Client) error {
					return app.NewApplication(client, cfg.Values.Kb).Start(ctx)
				})
			},
		},
	}
}

// withClient loads the configuration, connects to the keyboard service,
// and calls fn with a context that is canceled on interrupt.
func withClient(cliCtx *cli.Context, fn func(context.Context, *config.Config, *service.Client) error) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}

	name := cfg.Values.ServiceName
	if cliCtx.IsSet("service-name") {
		name = cliCtx.String("service-name")
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fault.Wrap(errors.Join(errorkinds.ErrBusConnect, err),
			fctx.With(context.Background(), "error_at", "client-systembus"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot initialize system DBus"),
		)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, cfg, service.NewClient(conn, name))
}

// stroke sends a press report, followed by a release report.
func stroke(sender app.Sender, modifier byte, keys []byte) error {
	if err := sender.SendKeys(modifier, keys); err != nil {
		return err
	}

	return sender.SendKeys(0, make([]byte, hid.KeySlots))
}

// typeStrokes types the strokes one after the other.
func typeStrokes(ctx context.Context, sender app.Sender, strokes []hid.Stroke, delay time.Duration, bar *progressbar.ProgressBar) error {
	if bar != nil {
		defer bar.Finish()
	}

	for i, s := range strokes {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case <-time.After(delay):
			}
		}

		if err := stroke(sender, s.Modifier, s.Keys()); err != nil {
			return err
		}

		if bar != nil {
			bar.Add(1)
		}
	}

	return nil
}

// parseKeyCodes parses up to six key codes, and pads them to a full report.
func parseKeyCodes(args []string) ([]byte, error) {
	if len(args) > hid.KeySlots {
		return nil, fault.Wrap(errorkinds.ErrInvalidReportLength,
			fctx.With(context.Background(),
				"error_at", "cli-parse-keycodes",
				"count", strconv.Itoa(len(args)),
			),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("At most "+strconv.Itoa(hid.KeySlots)+" key codes can be sent at once"),
		)
	}

	keys := make([]byte, hid.KeySlots)
	for i, arg := range args {
		key, err := parseByte(arg)
		if err != nil {
			return nil, err
		}

		keys[i] = key
	}

	return keys, nil
}

// parseByte parses a decimal, hexadecimal (0x) or binary (0b) byte.
func parseByte(value string) (byte, error) {
	b, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return 0, fault.Wrap(errors.Join(errorkinds.ErrInvalidKey, err),
			fctx.With(context.Background(),
				"error_at", "cli-parse-byte",
				"value", value,
			),
			ftag.With(ftag.InvalidArgument),
			fmsg.With("Invalid byte value '"+value+"'"),
		)
	}

	return byte(b), nil
}

func invalidArgs(command, message string) error {
	return fault.Wrap(errors.New("missing arguments"),
		fctx.With(context.Background(), "error_at", "cli-"+command),
		ftag.With(ftag.InvalidArgument),
		fmsg.With(message),
	)
}
