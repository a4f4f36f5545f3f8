// Command plotgen builds a chained hash-table plot.
//
//	plotgen -k 24 --memory 512MiB --name demo --dir ./plots --verify
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/plotgen"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		flags      settings
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "plotgen",
		Short: "Build a chained hash-table plot",
		Long: `plotgen generates 2^k nonces, hashes them into a chain of tables,
externally sorts every table by hash under a memory ceiling and prunes each
table against its parent from the last table down to the first.

Memory sizes accept units (512MiB, 2GB); a bare number means MiB.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := defaultSettings()
			if configPath != "" {
				fileSettings, err := loadSettings(configPath)
				if err != nil {
					return err
				}
				s = fileSettings
			}
			s.overlay(flags, cmd.Flags().Changed)
			return run(cmd, s)
		},
	}

	f := cmd.Flags()
	f.UintVarP(&flags.K, "k", "k", 0, "log2 of the number of table-0 entries (1-32)")
	f.StringVar(&flags.Memory, "memory", "", "memory ceiling for the sort stage (default 256MiB)")
	f.IntVar(&flags.Tables, "tables", plotgen.DefaultTableCount, "number of chained tables")
	f.StringVar(&flags.Name, "name", "", "run name used in file names (default random)")
	f.StringVar(&flags.Dir, "dir", ".", "output directory")
	f.BoolVar(&flags.Verify, "verify", false, "verify the table chain after collation")
	f.IntVar(&flags.Workers, "workers", 0, "worker goroutines (default GOMAXPROCS)")
	f.StringVar(&flags.SpillCompression, "spill-compression", "none", "sort run compression: none, lz4 or zstd")
	f.StringVar(&flags.IOLimit, "io-limit", "", "write throughput cap per second, e.g. 100MiB (default unlimited)")
	f.StringVar(&flags.Publish, "publish", "", "upload tables to file://dir, minio://endpoint/bucket/prefix or s3://bucket/prefix")
	f.StringVar(&flags.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&flags.LogFormat, "log-format", "text", "log format: text or json")
	f.StringVar(&configPath, "config", "", "YAML file with default settings; flags override it")

	return cmd
}

func run(cmd *cobra.Command, s settings) error {
	ctx := cmd.Context()

	cfg, opts, err := s.build(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	p, err := plotgen.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	rep, err := p.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, t := range rep.Tables {
		fmt.Fprintf(out, "table %d: %d entries (%s)\n", t.Table, t.Kept, t.Path)
	}
	fmt.Fprintln(out, rep.Summary())
	return nil
}
