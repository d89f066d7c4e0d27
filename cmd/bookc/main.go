package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"bookc/config"
	"bookc/convert"
	"bookc/misc"
	"bookc/state"
)

const convertHelp = `%s
SOURCE:
    markup to build the book from, one of:
        single file: "[path_to_file]file.afc"
        directory: "[path_to_directory]directory" - every file with configured extension, natural order
        zip archive: "[path_to_archive]archive.zip[path_in_archive]" - every markup file under path, natural order

    Relative search roots from configuration are resolved against the
    directory holding the sources, roots given with --search against the
    working directory.

DESTINATION:
    directory to generate book into, with several --to formats every format
    gets its own sub-directory named after it
    if absent - directory named after book title in the working directory
`

const dumpConfigHelp = `%s

DESTINATION:
    file to write configuration to, if absent - STDOUT

Without flags the active configuration is written: embedded defaults with
values from --config file applied on top. Use --default to see embedded
defaults only.
`

// errReported marks that the failure already went into the log, so main
// does not need to repeat it on stderr.
var errReported bool

// setupEnv runs after command line parsing and before any subcommand: it
// loads configuration, opens debug report and starts logging.
func setupEnv(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.NArg() == 0 {
		return ctx, nil
	}

	var err error
	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}

	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		if len(configFile) > 0 {
			// keep what was actually used, defaults included
			if data, err := config.Dump(env.Cfg); err == nil {
				env.Rpt.StoreData("config/"+filepath.Base(configFile), data)
			}
		}
	}

	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Started",
		zap.Strings("args", os.Args),
		zap.String("version", misc.GetVersion()),
		zap.String("runtime", runtime.Version()),
		zap.String("hash", misc.GetGitHash()))
	switch {
	case env.Rpt != nil:
		env.Log.Info("Collecting debug report", zap.String("location", env.Rpt.Name()))
	case len(configFile) == 0:
		env.Log.Info("No configuration file, running with defaults")
	}
	return ctx, nil
}

// teardownEnv closes everything setupEnv opened. Logging is gone once it
// returns.
func teardownEnv(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Finished", zap.Duration("elapsed", env.Uptime()), zap.Strings("args", cmd.Args().Slice()))
	}
	env.RestoreStdLog()

	var err error
	if env.Rpt != nil {
		err = multierr.Append(err, wrapErr("unable to close debug report", env.Rpt.Close()))
	}
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		err = multierr.Append(err, removeEmptyCrashLog(env.Cfg.Logging.FileLogger.Destination))
	}
	return err
}

// removeEmptyCrashLog drops crash output file set up next to the log when
// nothing was written into it.
func removeEmptyCrashLog(logName string) error {
	debug.SetCrashOutput(nil, debug.CrashOptions{})

	name := filepath.Join(filepath.Dir(logName), misc.GetAppName()+"-panic.log")
	fi, err := os.Stat(name)
	if err != nil || fi.Size() > 0 {
		return nil
	}
	return wrapErr("unable to remove empty crash log "+name, os.Remove(name))
}

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// logFailure is called while logging is still open, so subcommand failure
// ends up in the log and in debug report.
func logFailure(ctx context.Context, _ *cli.Command, err error) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Error("Book generation failed", zap.Error(err))
		errReported = true
	}
}

// usageError leaves the message to logFailure or main.
func usageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func unknownCommand(ctx context.Context, _ *cli.Command, name string) {
	if log := state.EnvFromContext(ctx).Log; log != nil {
		log.Warn("Unknown command, nothing to do", zap.String("command", name))
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "generates books from bracketed markup sources",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          setupEnv,
		After:           teardownEnv,
		OnUsageError:    usageError,
		ExitErrHandler:  logFailure,
		CommandNotFound: unknownCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose logging and report archive for troubleshooting"},
		},
		Commands: []*cli.Command{
			{
				Name:         "convert",
				Usage:        "Generates book from markup source(s) in requested format(s)",
				OnUsageError: usageError,
				Action:       convert.Run,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "to", Value: []string{config.OutputFmtHTML.String()},
						Usage: "output `TYPE`, could be repeated (" + strings.Join(config.OutputFmtNames(), ", ") + ")"},
					&cli.StringSliceFlag{Name: "intro", Usage: "markup `FILE` with introduction (front matter), could be repeated"},
					&cli.StringSliceFlag{Name: "search", Usage: "`DIR` to look for images in, could be repeated, replaces configured search roots"},
					&cli.StringFlag{Name: "title", Usage: "book `TITLE`, replaces configured one"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "write into non empty destination replacing files"},
					&cli.StringFlag{Name: "force-zip-cp",
						Usage: "decode non UTF-8 file names in zip sources with `ENCODING` (IANA character set name)"},
				},
				ArgsUsage:          "SOURCE [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(convertHelp, cli.CommandHelpTemplate),
			},
			{
				Name:  "dumpconfig",
				Usage: "Writes default or active configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "write embedded defaults"},
				},
				OnUsageError:       usageError,
				Action:             dumpConfiguration,
				ArgsUsage:          "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(dumpConfigHelp, cli.CommandHelpTemplate),
			},
		},
	}
}

func main() {
	// interrupt cancels context, conversion checks it between stages
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	err := newApp().Run(ctx, os.Args)
	stop()

	if err == nil {
		return
	}
	// failures before logging was set up or after it was closed are only
	// visible on stderr
	if !errReported {
		fmt.Fprintf(os.Stderr, "%s: %v\n", misc.GetAppName(), err)
	}
	os.Exit(1)
}

func dumpConfiguration(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Too many destinations, using the first one", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	var (
		data []byte
		err  error
		kind = "active"
	)
	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Prepare()
	} else {
		data, err = config.Dump(env.Cfg)
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	env.Log.Info("Writing configuration", zap.String("kind", kind), zap.String("to", cmp.Or(fname, "STDOUT")))
	if len(fname) == 0 {
		_, err = os.Stdout.Write(data)
		return wrapErr("unable to write configuration", err)
	}
	return writeFile(fname, data)
}

func writeFile(fname string, data []byte) (err error) {
	out, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("unable to create destination file %q: %w", fname, err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()
	_, err = out.Write(data)
	return wrapErr("unable to write configuration", err)
}
