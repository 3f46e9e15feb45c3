package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rms/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("store_dir=" + cfg.StoreDirAbs)
	io.Println("vendor=" + cfg.Vendor)
	io.Println("suite=" + cfg.Suite)
	io.Println("log_level=" + cfg.Level.String())

	if cfg.HeaderCacheSize != 0 {
		io.Println("header_cache_size=" + strconv.Itoa(cfg.HeaderCacheSize))
	}

	if cfg.QuotaBytes != 0 {
		io.Println("quota_bytes=" + strconv.FormatInt(cfg.QuotaBytes, 10))
	}

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
