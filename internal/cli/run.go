// Package cli implements the rmsctl command line.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rms/internal/config"
	"github.com/calvinalkan/rms/pkg/fs"
	"github.com/calvinalkan/rms/pkg/rms"
)

// Run is the main entry point. Returns exit code.
//
// args includes the program name. sigCh, if non-nil, cancels the running
// command when it receives a value.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("rmsctl", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(io.Discard)

	workDir := globals.StringP("cwd", "C", "", "Run as if started in `dir`")
	configPath := globals.StringP("config", "c", "", "Use specified config `file`")
	storeDir := globals.String("store-dir", "", "Override the store directory")
	vendor := globals.String("vendor", "", "Override the application vendor")
	suite := globals.String("suite", "", "Override the application suite")
	logLevel := globals.String("log-level", "", "Override the log level (debug, info, warn, error)")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, globals, nil)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    *workDir,
		ConfigPath: *configPath,
		Overrides: config.Overrides{
			StoreDir: *storeDir,
			Vendor:   *vendor,
			Suite:    *suite,
			LogLevel: *logLevel,
		},
		Env: env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	s, err := newSession(&cfg, in, errOut)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	commands := allCommands(s)

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out, globals, commands)

		return 0
	}

	var cmd *Command

	for _, c := range commands {
		if c.Name() == rest[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		printUsage(errOut, globals, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

func allCommands(s *session) []*Command {
	return []*Command{
		StoresCmd(s),
		AddCmd(s),
		GetCmd(s),
		SetCmd(s),
		RmCmd(s),
		IDsCmd(s),
		InfoCmd(s),
		ModeCmd(s),
		CompactCmd(s),
		DropCmd(s),
		ExportCmd(s),
		ShellCmd(s),
		InitCmd(s),
		PrintConfigCmd(s.cfg),
	}
}

// session is the state shared by every command of one invocation.
type session struct {
	cfg  *config.Config
	reg  *rms.Registry
	app  rms.AppID
	fsys fs.FS
	in   io.Reader
	log  zerolog.Logger
}

func newSession(cfg *config.Config, in io.Reader, errOut io.Writer) (*session, error) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: errOut, NoColor: true, TimeFormat: time.TimeOnly}).
		Level(cfg.Level).
		With().Timestamp().Logger()

	fsys := fs.NewReal()

	reg, err := rms.NewRegistry(rms.Options{
		Dir:             cfg.StoreDirAbs,
		FS:              fsys,
		HeaderCacheSize: cfg.HeaderCacheSize,
		QuotaBytes:      cfg.QuotaBytes,
		Logger:          &log,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:  cfg,
		reg:  reg,
		app:  rms.AppID{Vendor: cfg.Vendor, Suite: cfg.Suite},
		fsys: fsys,
		in:   in,
		log:  log,
	}, nil
}

// ownerFlags selects the owning application of the store a command works
// on. Unset means the configured application.
type ownerFlags struct {
	vendor string
	suite  string
}

func addOwnerFlags(flags *flag.FlagSet) *ownerFlags {
	o := &ownerFlags{}
	flags.StringVar(&o.vendor, "owner-vendor", "", "Vendor of the owning application (shared open)")
	flags.StringVar(&o.suite, "owner-suite", "", "Suite of the owning application (shared open)")

	return o
}

func (o *ownerFlags) resolve(self rms.AppID) rms.AppID {
	if o == nil || o.vendor == "" && o.suite == "" {
		return self
	}

	owner := rms.AppID{Vendor: o.vendor, Suite: o.suite}
	if owner.Vendor == "" {
		owner.Vendor = self.Vendor
	}

	if owner.Suite == "" {
		owner.Suite = self.Suite
	}

	return owner
}

// open opens name owned by owner (the session's application if nil).
// Own stores are created when create is true, with the given mode.
func (s *session) open(name string, owner *ownerFlags, create bool, mode rms.AuthMode, writable bool) (*rms.Store, error) {
	o := owner.resolve(s.app)
	if o != s.app {
		return s.reg.OpenShared(s.app, name, o)
	}

	return s.reg.OpenOwn(s.app, name, create, mode, writable)
}

// closeStore closes st, folding a close failure into err.
func closeStore(st *rms.Store, err *error) {
	*err = errors.Join(*err, st.Close())
}

func printUsage(w io.Writer, globals *flag.FlagSet, commands []*Command) {
	fprintln(w, `rmsctl - inspect and edit record stores

Usage: rmsctl [options] <command> [args]

Options:`)

	var buf strings.Builder

	globals.SetOutput(&buf)
	globals.PrintDefaults()
	globals.SetOutput(io.Discard)

	_, _ = io.WriteString(w, buf.String())

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}
}
