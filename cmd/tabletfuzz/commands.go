package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/fuzz"
	"github.com/aalhour/tabletfuzz/internal/logging"
)

func newRunCmd() *cobra.Command {
	var cf *configFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate random cases and run them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cf.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Seed == 0 {
				cfg.Seed = time.Now().UnixNano()
			}
			for i := range cfg.Iterations {
				seed := cfg.Seed + int64(i)
				gen := fuzz.NewGenerator(fuzz.GeneratorConfig{Seed: seed, AllowRestart: cfg.AllowRestart})
				c, err := gen.Generate(cfg.Length)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "case %d: seed=%d length=%d\n", i, seed, len(c))
				if err := runCase(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, c); err != nil {
					return errors.Wrapf(err, "seed %d", seed)
				}
			}
			return nil
		},
	}
	cf = addConfigFlags(cmd.Flags())
	return cmd
}

func newReplayCmd() *cobra.Command {
	var (
		cf           *configFlags
		skipValidate bool
	)
	cmd := &cobra.Command{
		Use:   "replay <case-file>",
		Short: "Run a case printed by a failed run or by generate (\"-\" reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cf.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrap(err, "read case")
			}
			c, err := fuzz.ParseCase(string(data))
			if err != nil {
				return err
			}
			if !skipValidate {
				if err := fuzz.Validate(c); err != nil {
					return errors.WithHint(err, "pass --skip-validate to run it anyway")
				}
			}
			return runCase(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, c)
		},
	}
	cf = addConfigFlags(cmd.Flags())
	cmd.Flags().BoolVar(&skipValidate, "skip-validate", false,
		"run the case even if it is not legal; hand-written regressions often repeat maintenance ops the generator forbids")
	return cmd
}

func newGenerateCmd() *cobra.Command {
	var cf *configFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a random case without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cf.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Seed == 0 {
				cfg.Seed = time.Now().UnixNano()
			}
			c, err := fuzz.NewGenerator(fuzz.GeneratorConfig{Seed: cfg.Seed, AllowRestart: cfg.AllowRestart}).Generate(cfg.Length)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# seed=%d\n%s\n", cfg.Seed, fuzz.FormatCase(c))
			return nil
		},
	}
	cf = addConfigFlags(cmd.Flags())
	return cmd
}

// runCase runs c on a fresh cluster in a new directory under cfg.Dir. The
// directory is removed after a pass unless cfg.Keep is set, and always
// kept after a failure.
func runCase(out, logOut io.Writer, cfg Config, c fuzz.Case) (retErr error) {
	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.NewLogger(logOut, level)
	ct, _ := compression.ParseType(cfg.Compression)

	dir, err := os.MkdirTemp(cfg.Dir, "tabletfuzz-")
	if err != nil {
		return errors.Wrap(err, "create data directory")
	}
	defer func() {
		if retErr != nil || cfg.Keep {
			fmt.Fprintf(out, "data kept in %s\n", dir)
			return
		}
		_ = os.RemoveAll(dir)
	}()

	opts := fuzz.DefaultEnvOptions(dir)
	opts.Logger = logger
	opts.Compression = ct
	opts.SyncWAL = cfg.SyncWAL
	e, err := fuzz.NewClusterEngine(opts)
	if err != nil {
		return err
	}
	defer func() {
		retErr = errors.CombineErrors(retErr, e.Close())
	}()

	start := time.Now()
	if err := fuzz.NewHarness(e, logger).Run(c, cfg.UpdateMultiplier); err != nil {
		fmt.Fprintf(out, "FAIL after %s: %v\ncase:\n%s\n", time.Since(start).Round(time.Millisecond), err, fuzz.FormatCase(c))
		return err
	}
	fmt.Fprintf(out, "PASS %d ops in %s\n", len(c), time.Since(start).Round(time.Millisecond))
	return nil
}
