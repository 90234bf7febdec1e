package cmd

import (
	"context"
	"fmt"
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
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/darkhz/btkbd/internal/bluez"
	"github.com/darkhz/btkbd/internal/config"
	"github.com/darkhz/btkbd/internal/daemon"
	"github.com/darkhz/btkbd/internal/errorkinds"
	"github.com/darkhz/btkbd/internal/l2cap"
	"github.com/darkhz/btkbd/internal/sdp"
)

// These values are set at compile-time.
var (
	Version  = ""
	Revision = ""
)

// Run runs the commandline application.
func Run() error {
	return newApp().Run(os.Args)
}

// newApp returns a new commandline application.
func newApp() *cli.App {
	cli.VersionPrinter = func(cCtx *cli.Context) {
		fmt.Fprintf(cCtx.App.Writer, "%s (%s)\n", Version, Revision)
	}

	return &cli.App{
		Name:                   "btkbd",
		Usage:                  "Bluetooth HID keyboard emulator.",
		Version:                Version + " (" + Revision + ")",
		Description:            "Emulates a Bluetooth keyboard, and types the keys sent to it on the connected host.",
		Compiled:               time.Now(),
		EnableBashCompletion:   true,
		UseShortOptionHandling: true,
		Suggest:                true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "list-adapters",
				Aliases: []string{"l"},
				Usage:   "List available adapters.",
				Action: func(*cli.Context, bool) error {
					return listAdapters()
				},
			},
			&cli.StringFlag{
				Name:    "adapter",
				Aliases: []string{"a"},
				EnvVars: []string{"BTKBD_ADAPTER"},
				Usage:   "Specify an adapter to use. (For example, hci0)",
			},
			&cli.StringFlag{
				Name:    "alias",
				Aliases: []string{"n"},
				EnvVars: []string{"BTKBD_ALIAS"},
				Usage:   "Specify the name that hosts see when discovering the keyboard.",
			},
			&cli.UintFlag{
				Name:    "discoverable-timeout",
				Aliases: []string{"t"},
				EnvVars: []string{"BTKBD_DISCOVERABLE_TIMEOUT"},
				Usage:   "Specify the number of seconds the adapter stays discoverable. (0 disables the timeout)",
			},
			&cli.StringFlag{
				Name:    "sdp-record",
				Aliases: []string{"r"},
				EnvVars: []string{"BTKBD_SDP_RECORD"},
				Usage:   "Specify the path to the SDP record of the keyboard.",
			},
			&cli.StringFlag{
				Name:    "service-name",
				Aliases: []string{"s"},
				EnvVars: []string{"BTKBD_SERVICE_NAME"},
				Usage:   "Specify the bus name of the keyboard service.",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"L"},
				EnvVars: []string{"BTKBD_LOG_LEVEL"},
				Usage:   "Specify the log level. (trace, debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"f"},
				EnvVars: []string{"BTKBD_CONFIG"},
				Usage:   "Specify the path to the configuration file.",
			},
			&cli.BoolFlag{
				Name:    "generate",
				Aliases: []string{"g"},
				Usage:   "Generate the configuration and the SDP record.",
				Action: func(cliCtx *cli.Context, _ bool) error {
					return generate(cliCtx)
				},
			},
		},
		Commands: clientCommands(),
		Action: func(cliCtx *cli.Context) error {
			if cliCtx.Bool("list-adapters") || cliCtx.Bool("generate") {
				return nil
			}

			cfg, err := loadConfig(cliCtx)
			if err != nil {
				return err
			}

			setupLogging(cfg.Values.Level)

			if err := checkPrivileges(); err != nil {
				return err
			}

			return runDaemon(cliCtx.Context, cfg)
		},
		ExitErrHandler: func(_ *cli.Context, err error) {
			if err == nil {
				return
			}

			printError(err)
		},
	}
}

// runDaemon runs the keyboard daemon until it is interrupted.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := daemon.New(daemon.Options{
		Config:    cfg,
		Transport: l2cap.Transport{},
		Logger:    logrus.NewEntry(logrus.StandardLogger()),
	})
	defer func() {
		if err := d.Close(); err != nil {
			logrus.WithError(err).Warn("Error while stopping the keyboard")
		}
	}()

	if err := d.Start(); err != nil {
		return err
	}

	return d.Run(ctx)
}

// loadConfig loads and validates the configuration.
func loadConfig(cliCtx *cli.Context) (*config.Config, error) {
	// required for koanf to merge all global flags under the root namespace.
	cliCtx.Command.Name = "global"

	k, cfg := koanf.New("."), config.NewConfig()
	if err := cfg.Load(k, cliCtx); err != nil {
		return nil, err
	}
	if err := cfg.ValidateValues(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// generate writes the configuration file, and the default SDP record
// if no record exists at the configured path.
func generate(cliCtx *cli.Context) error {
	cfg, err := loadConfig(cliCtx)
	if err != nil {
		return err
	}

	path, err := cfg.GenerateAndSave()
	if err != nil {
		return err
	}

	fmt.Println("Configuration written to", path)

	record := cfg.Values.SDPRecord
	if _, err := os.Stat(record); err == nil {
		printWarn("The SDP record at " + record + " already exists, not overwriting it")
		return nil
	}

	if err := sdp.WriteDefault(record); err != nil {
		return err
	}

	fmt.Println("SDP record written to", record)

	return nil
}

// listAdapters prints the adapters that are known to Bluez.
func listAdapters() error {
	var sb strings.Builder

	client, err := bluez.Connect(bluez.ClientOptions{})
	if err != nil {
		return err
	}
	defer client.Close()

	adapters, err := client.Adapters()
	if err != nil {
		return err
	}

	sb.WriteString("List of adapters:")
	for _, adapter := range adapters {
		sb.WriteString("\n- ")
		sb.WriteString(adapter.UniqueName)
		sb.WriteString(" (")
		sb.WriteString(adapter.Address.String())
		if adapter.Alias != "" {
			sb.WriteString(", ")
			sb.WriteString(adapter.Alias)
		}
		sb.WriteString(")")
	}

	fmt.Println(sb.String())

	return nil
}

// setupLogging sets the log level and format.
func setupLogging(level logrus.Level) {
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// checkPrivileges checks that the daemon runs as root, which is required
// to bind the L2CAP sockets.
func checkPrivileges() error {
	if unix.Geteuid() == 0 {
		return nil
	}

	return fault.Wrap(errorkinds.ErrPermission,
		fctx.With(context.Background(),
			"error_at", "check-privileges",
			"euid", strconv.Itoa(unix.Geteuid()),
		),
		ftag.With(ftag.Internal),
		fmsg.With("The keyboard must be run as root"),
	)
}

// errorMessage returns the error prefixed with its user-facing messages, if any.
func errorMessage(err error) string {
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue + ": " + err.Error()
	}

	return err.Error()
}
