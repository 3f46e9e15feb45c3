package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rms/pkg/rms"
)

var (
	errStoreRequired = errors.New("store name is required")
	errArgs          = errors.New("wrong number of arguments")
	errBadRecordID   = errors.New("invalid record id")
)

func parseRecordID(s string) (rms.RecordID, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", errBadRecordID, s)
	}

	return rms.RecordID(n), nil
}

// payloadArg returns args[i] as bytes, or all of stdin when args has no
// element i.
func (s *session) payloadArg(args []string, i int) ([]byte, error) {
	if i < len(args) {
		return []byte(args[i]), nil
	}

	if s.in == nil {
		return nil, nil
	}

	data, err := io.ReadAll(s.in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}

	return data, nil
}

// StoresCmd returns the stores command.
func StoresCmd(s *session) *Command {
	flags := flag.NewFlagSet("stores", flag.ContinueOnError)
	owner := addOwnerFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "stores [flags]",
		Short: "List the application's stores",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			names, err := s.reg.ListNames(owner.resolve(s.app))
			if err != nil {
				return err
			}

			for _, n := range names {
				o.Println(n)
			}

			return nil
		},
	}
}

// AddCmd returns the add command.
func AddCmd(s *session) *Command {
	flags := flag.NewFlagSet("add", flag.ContinueOnError)
	owner := addOwnerFlags(flags)
	modeName := flags.String("mode", "private", "Auth mode if the store is created (private, any, any-rw)")

	return &Command{
		Flags: flags,
		Usage: "add <store> [data]",
		Short: "Add a record, reading stdin if data is omitted",
		Long: "Add a record to <store> and print its id. The store is created if it does not exist.\n" +
			"Without a data argument the record is read from stdin.",
		Exec: func(_ context.Context, o *IO, args []string) (err error) {
			if len(args) < 1 || len(args) > 2 {
				return errArgs
			}

			mode, writable, err := parseMode(*modeName)
			if err != nil {
				return err
			}

			data, err := s.payloadArg(args, 1)
			if err != nil {
				return err
			}

			st, err := s.open(args[0], owner, true, mode, writable)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			id, err := st.Add(data)
			if err != nil {
				return err
			}

			o.Println(id)

			return nil
		},
	}
}

// GetCmd returns the get command.
func GetCmd(s *session) *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	owner := addOwnerFlags(flags)
	raw := flags.Bool("raw", false, "Do not append a newline")

	return &Command{
		Flags: flags,
		Usage: "get <store> <id> [flags]",
		Short: "Print a record",
		Exec: func(_ context.Context, o *IO, args []string) (err error) {
			if len(args) != 2 {
				return errArgs
			}

			id, err := parseRecordID(args[1])
			if err != nil {
				return err
			}

			st, err := s.open(args[0], owner, false, rms.AuthPrivate, false)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			data, err := st.Get(id)
			if err != nil {
				return err
			}

			_, _ = o.Write(data)

			if !*raw {
				o.Println()
			}

			return nil
		},
	}
}

// SetCmd returns the set command.
func SetCmd(s *session) *Command {
	flags := flag.NewFlagSet("set", flag.ContinueOnError)
	owner := addOwnerFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "set <store> <id> [data]",
		Short: "Replace a record, reading stdin if data is omitted",
		Exec: func(_ context.Context, _ *IO, args []string) (err error) {
			if len(args) < 2 || len(args) > 3 {
				return errArgs
			}

			id, err := parseRecordID(args[1])
			if err != nil {
				return err
			}

			data, err := s.payloadArg(args, 2)
			if err != nil {
				return err
			}

			st, err := s.open(args[0], owner, false, rms.AuthPrivate, false)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			return st.Set(id, data)
		},
	}
}

// RmCmd returns the rm command.
func RmCmd(s *session) *Command {
	flags := flag.NewFlagSet("rm", flag.ContinueOnError)
	owner := addOwnerFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "rm <store> <id>...",
		Short: "Delete records",
		Exec: func(_ context.Context, _ *IO, args []string) (err error) {
			if len(args) < 2 {
				return errArgs
			}

			ids := make([]rms.RecordID, 0, len(args)-1)

			for _, a := range args[1:] {
				id, err := parseRecordID(a)
				if err != nil {
					return err
				}

				ids = append(ids, id)
			}

			st, err := s.open(args[0], owner, false, rms.AuthPrivate, false)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			for _, id := range ids {
				err = st.Delete(id)
				if err != nil {
					return err
				}
			}

			return nil
		},
	}
}

// IDsCmd returns the ids command.
func IDsCmd(s *session) *Command {
	flags := flag.NewFlagSet("ids", flag.ContinueOnError)
	owner := addOwnerFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "ids <store>",
		Short: "List record ids in ascending order",
		Exec: func(_ context.Context, o *IO, args []string) (err error) {
			if len(args) != 1 {
				return errStoreRequired
			}

			st, err := s.open(args[0], owner, false, rms.AuthPrivate, false)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			ids, err := st.AllIDs()
			if err != nil {
				return err
			}

			slices.Sort(ids)

			for _, id := range ids {
				o.Println(id)
			}

			return nil
		},
	}
}
