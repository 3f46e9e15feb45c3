package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/rms/internal/config"
	"github.com/calvinalkan/rms/pkg/rms"
)

// parseMode maps a mode name to the (mode, writable) pair of SetMode.
func parseMode(name string) (rms.AuthMode, bool, error) {
	switch name {
	case "private":
		return rms.AuthPrivate, false, nil
	case "any":
		return rms.AuthAny, false, nil
	case "any-rw":
		return rms.AuthAny, true, nil
	default:
		return 0, false, fmt.Errorf("unknown mode %q (want private, any or any-rw)", name)
	}
}

// InfoCmd returns the info command.
func InfoCmd(s *session) *Command {
	flags := flag.NewFlagSet("info", flag.ContinueOnError)
	owner := addOwnerFlags(flags)

	return &Command{
		Flags: flags,
		Usage: "info <store>",
		Short: "Show store header and space usage",
		Exec: func(_ context.Context, o *IO, args []string) (err error) {
			if len(args) != 1 {
				return errStoreRequired
			}

			st, err := s.open(args[0], owner, false, rms.AuthPrivate, false)
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			info, err := st.Info()
			if err != nil {
				return err
			}

			avail, err := st.BytesAvailable()
			if err != nil {
				return err
			}

			o.Println("store=" + info.Identity.String())
			o.Println("mode=" + info.AuthMode.String())
			o.Printf("records=%d\n", info.Count)
			o.Printf("version=%d\n", info.Version)
			o.Printf("next_id=%d\n", info.NextID)
			o.Printf("size=%d\n", info.TotalBytes)
			o.Printf("free_blocks=%d\n", info.FreeBlocks)
			o.Printf("free_bytes=%d\n", info.FreeBytes)
			o.Printf("bytes_available=%d\n", avail)
			o.Println("last_modified=" + info.LastModified.UTC().Format(time.RFC3339))

			return nil
		},
	}
}

// ModeCmd returns the mode command.
func ModeCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("mode", flag.ContinueOnError),
		Usage: "mode <store> <private|any|any-rw>",
		Short: "Change who may open and write a store",
		Long: "Change the authorization mode of an owned store.\n" +
			"private: owner only. any: everyone may read. any-rw: everyone may read and write.",
		Exec: func(_ context.Context, _ *IO, args []string) (err error) {
			if len(args) != 2 {
				return errArgs
			}

			mode, writable, err := parseMode(args[1])
			if err != nil {
				return err
			}

			st, err := s.reg.OpenPrivate(s.app, args[0])
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			return st.SetMode(mode, writable)
		},
	}
}

// CompactCmd returns the compact command.
func CompactCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("compact", flag.ContinueOnError),
		Usage: "compact <store>",
		Short: "Reclaim free space now",
		Exec: func(_ context.Context, o *IO, args []string) (err error) {
			if len(args) != 1 {
				return errStoreRequired
			}

			st, err := s.reg.OpenPrivate(s.app, args[0])
			if err != nil {
				return err
			}
			defer closeStore(st, &err)

			before, err := st.TotalBytes()
			if err != nil {
				return err
			}

			err = st.Compact()
			if err != nil {
				return err
			}

			after, err := st.TotalBytes()
			if err != nil {
				return err
			}

			o.Printf("size %d -> %d\n", before, after)

			return nil
		},
	}
}

// DropCmd returns the drop command.
func DropCmd(s *session) *Command {
	return &Command{
		Flags: flag.NewFlagSet("drop", flag.ContinueOnError),
		Usage: "drop <store>",
		Short: "Delete a store and all its records",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			if len(args) != 1 {
				return errStoreRequired
			}

			return s.reg.Delete(s.app, args[0])
		},
	}
}

type exportDoc struct {
	Store   string         `json:"store" yaml:"store"`
	Version int            `json:"version" yaml:"version"`
	Records []exportRecord `json:"records" yaml:"records"`
}

// exportRecord carries the payload base64-encoded so both formats stay
// text.
type exportRecord struct {
	ID   rms.RecordID `json:"id" yaml:"id"`
	Data string       `json:"data" yaml:"data"`
}

func encodeExport(doc exportDoc, format string) ([]byte, error) {
	switch format {
	case "json":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}

		return append(out, '\n'), nil
	case "yaml":
		var buf bytes.Buffer

		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)

		err := enc.Encode(doc)
		if err != nil {
			return nil, err
		}

		err = enc.Close()
		if err != nil {
			return nil, err
		}

		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

// ExportCmd returns the export command.
func ExportCmd(s *session) *Command {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	owner := addOwnerFlags(flags)
	format := flags.String("format", "json", "Output format (json, yaml)")

	return &Command{
		Flags: flags,
		Usage: "export <store> <file> [flags]",
		Short: "Write all records to a JSON or YAML file",
		Long: "Write every record of <store> to <file>, payloads base64-encoded.\n" +
			"The file is replaced atomically.",
		Exec: func(ctx context.Context, o *IO, args []string) (err error) {
			if len(args) != 2 {
				return errArgs
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

			version, err := st.Version()
			if err != nil {
				return err
			}

			doc := exportDoc{
				Store:   st.Identity().String(),
				Version: version,
				Records: make([]exportRecord, 0, len(ids)),
			}

			for _, id := range ids {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				data, err := st.Get(id)
				if err != nil {
					return err
				}

				doc.Records = append(doc.Records, exportRecord{
					ID:   id,
					Data: base64.StdEncoding.EncodeToString(data),
				})
			}

			out, err := encodeExport(doc, *format)
			if err != nil {
				return fmt.Errorf("encode export: %w", err)
			}

			path := args[1]
			if !filepath.IsAbs(path) {
				path = filepath.Join(s.cfg.EffectiveCwd, path)
			}

			err = s.fsys.WriteFileAtomic(path, out, 0o644)
			if err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			o.Printf("exported %d records to %s\n", len(doc.Records), path)

			return nil
		},
	}
}

// InitCmd returns the init command.
func InitCmd(s *session) *Command {
	flags := flag.NewFlagSet("init", flag.ContinueOnError)
	force := flags.Bool("force", false, "Overwrite an existing config file")

	return &Command{
		Flags: flags,
		Usage: "init [--force]",
		Short: "Write a default " + config.FileName + " in the working directory",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			path := filepath.Join(s.cfg.EffectiveCwd, config.FileName)

			exists, err := s.fsys.Exists(path)
			if err != nil {
				return err
			}

			if exists && !*force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := config.Format(config.Default())
			if err != nil {
				return err
			}

			err = s.fsys.WriteFileAtomic(path, data, 0o644)
			if err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			o.Println("wrote " + path)

			return nil
		},
	}
}
