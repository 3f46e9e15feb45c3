package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rms/pkg/rms"
)

var shellCommands = []string{
	"add", "get", "set", "rm", "ids", "count", "info", "compact", "help", "quit", "exit",
}

// prompter reads one line of shell input.
type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

// scanPrompter reads lines from a non-terminal reader.
type scanPrompter struct {
	sc *bufio.Scanner
}

func (p *scanPrompter) Prompt(string) (string, error) {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.sc.Text(), nil
}

func (*scanPrompter) AppendHistory(string) {}

func (*scanPrompter) Close() error { return nil }

type linePrompter struct {
	*liner.State
	history string
}

func (p *linePrompter) Close() error {
	if p.history != "" {
		if f, err := os.Create(p.history); err == nil {
			_, _ = p.WriteHistory(f)
			_ = f.Close()
		}
	}

	return p.State.Close()
}

func newPrompter(in io.Reader) prompter {
	if f, ok := in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		st := liner.NewLiner()
		st.SetCtrlCAborts(true)
		st.SetCompleter(func(line string) []string {
			var out []string

			for _, c := range shellCommands {
				if strings.HasPrefix(c, strings.ToLower(line)) {
					out = append(out, c)
				}
			}

			return out
		})

		p := &linePrompter{State: st}

		if home, err := os.UserHomeDir(); err == nil {
			p.history = filepath.Join(home, ".rmsctl_history")
			if h, err := os.Open(p.history); err == nil {
				_, _ = st.ReadHistory(h)
				_ = h.Close()
			}
		}

		return p
	}

	return &scanPrompter{sc: bufio.NewScanner(in)}
}

// eventPrinter reports change notifications in the shell.
type eventPrinter struct {
	o *IO
}

func (e *eventPrinter) RecordAdded(_ *rms.Store, id rms.RecordID) {
	e.o.Printf("* added %d\n", id)
}

func (e *eventPrinter) RecordChanged(_ *rms.Store, id rms.RecordID) {
	e.o.Printf("* changed %d\n", id)
}

func (e *eventPrinter) RecordDeleted(_ *rms.Store, id rms.RecordID) {
	e.o.Printf("* deleted %d\n", id)
}

// ShellCmd returns the shell command.
func ShellCmd(s *session) *Command {
	flags := flag.NewFlagSet("shell", flag.ContinueOnError)
	owner := addOwnerFlags(flags)
	create := flags.Bool("create", false, "Create the store if it does not exist")
	watch := flags.Bool("watch", false, "Print change notifications")

	return &Command{
		Flags: flags,
		Usage: "shell <store> [flags]",
		Short: "Interactive session on one store",
		Long: "Open <store> and read commands until quit or end of input.\n" +
			"Commands: " + strings.Join(shellCommands, ", "),
		Exec: func(ctx context.Context, o *IO, args []string) (err error) {
			if len(args) != 1 {
				return errStoreRequired
			}

			st, err := s.open(args[0], owner, *create, rms.AuthPrivate, false)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			if *watch {
				err = st.AddListener(&eventPrinter{o: o})
				if err != nil {
					return err
				}
			}

			p := newPrompter(s.in)

			defer func() {
				err = errors.Join(err, p.Close())
			}()

			return runShell(ctx, s, o, st, p)
		},
	}
}

func runShell(ctx context.Context, s *session, o *IO, st *rms.Store, p prompter) error {
	prompt := st.Name() + "> "

	for ctx.Err() == nil {
		line, err := p.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		p.AppendHistory(line)

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		if cmd == "quit" || cmd == "exit" {
			return nil
		}

		err = shellExec(o, st, strings.ToLower(cmd), rest)
		if err != nil {
			s.log.Debug().Err(err).Str("cmd", cmd).Msg("shell command failed")
			o.ErrPrintln("error:", err)
		}
	}

	return ctx.Err()
}

// shellExec runs one shell line. Payloads are the raw remainder of the
// line so they may contain spaces.
func shellExec(o *IO, st *rms.Store, cmd, rest string) error {
	switch cmd {
	case "help":
		o.Println("add <data>         add a record")
		o.Println("get <id>           print a record")
		o.Println("set <id> <data>    replace a record")
		o.Println("rm <id>            delete a record")
		o.Println("ids                list record ids")
		o.Println("count              number of records")
		o.Println("info               store summary")
		o.Println("compact            reclaim free space")
		o.Println("quit               leave the shell")

		return nil

	case "add":
		id, err := st.Add([]byte(rest))
		if err != nil {
			return err
		}

		o.Println(id)

		return nil

	case "get":
		id, err := parseRecordID(rest)
		if err != nil {
			return err
		}

		data, err := st.Get(id)
		if err != nil {
			return err
		}

		o.Println(string(data))

		return nil

	case "set":
		idArg, data, _ := strings.Cut(rest, " ")

		id, err := parseRecordID(idArg)
		if err != nil {
			return err
		}

		return st.Set(id, []byte(data))

	case "rm":
		id, err := parseRecordID(rest)
		if err != nil {
			return err
		}

		return st.Delete(id)

	case "ids":
		ids, err := st.AllIDs()
		if err != nil {
			return err
		}

		slices.Sort(ids)

		for _, id := range ids {
			o.Println(id)
		}

		return nil

	case "count":
		n, err := st.Count()
		if err != nil {
			return err
		}

		o.Println(n)

		return nil

	case "info":
		info, err := st.Info()
		if err != nil {
			return err
		}

		o.Printf("%s mode=%s records=%d version=%d size=%d free=%d\n",
			info.Identity, info.AuthMode, info.Count, info.Version, info.TotalBytes, info.FreeBytes)

		return nil

	case "compact":
		return st.Compact()

	default:
		return fmt.Errorf("unknown command %q (type help)", cmd)
	}
}
