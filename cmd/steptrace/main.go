// steptrace drives a CPU emulation engine to produce committed, replayable
// single-step execution traces for dispute resolution over program runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steptrace/steptrace/arch"
	"github.com/steptrace/steptrace/emulator"
	"github.com/steptrace/steptrace/log"
	"github.com/steptrace/steptrace/tracestore"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "steptrace",
		Short: "Verifiable single-step execution tracer",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var (
		configPath string
		logLevel   string
		debug      string

		entry     uint64
		exitpoint uint64
		timeout   uint64
		count     uint64

		step      uint64
		outDir    string
		storePath string
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "loglevel", "info", "Log level (trace|debug|info|warn|error|crit)")
	rootCmd.PersistentFlags().StringVar(&debug, "debug", "", "Comma-separated log modules to enable")

	var runCmd = &cobra.Command{
		Use:   "run <binary>",
		Short: "Run a binary to completion and print the retired step count and final state root",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			log.EnableModules(debug)

			emu, info := setup(configPath, args[0])
			if entry == 0 {
				entry = info.Entrypoint
			}
			steps, err := emu.Run(entry, exitpoint, timeout, count)
			if err != nil {
				fmt.Printf("Run failed: %v\n", err)
				os.Exit(1)
			}
			state, err := emu.Save()
			if err != nil {
				fmt.Printf("Snapshot failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Retired steps: %d\n", steps)
			fmt.Printf("State root:    %s\n", state.StateRoot().Hex())
		},
	}
	runCmd.Flags().Uint64Var(&entry, "entry", 0, "Entry address (0 = ELF entrypoint)")
	runCmd.Flags().Uint64Var(&exitpoint, "exit", 0, "Exit address (0 = architecture default)")
	runCmd.Flags().Uint64Var(&timeout, "timeout", 0, "Timeout in microseconds (0 = none)")
	runCmd.Flags().Uint64Var(&count, "count", 0, "Instruction count cap (0 = unlimited)")

	var traceCmd = &cobra.Command{
		Use:   "trace <binary>",
		Short: "Trace one instruction after N untraced steps and export the proof bundle",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			log.EnableModules(debug)

			emu, info := setup(configPath, args[0])
			if entry == 0 {
				entry = info.Entrypoint
			}
			change, err := emu.RunUntil(entry, exitpoint, timeout, step)
			if err != nil {
				fmt.Printf("Trace failed: %v\n", err)
				os.Exit(1)
			}
			if err := change.OutputTo(outDir); err != nil {
				fmt.Printf("Export failed: %v\n", err)
				os.Exit(1)
			}
			if storePath != "" {
				store, err := tracestore.NewStore(storePath)
				if err != nil {
					fmt.Printf("Open store failed: %v\n", err)
					os.Exit(1)
				}
				defer store.Close()
				if err := store.Put(change); err != nil {
					fmt.Printf("Store failed: %v\n", err)
					os.Exit(1)
				}
			}
			fmt.Printf("Step:        %d\n", change.Step)
			fmt.Printf("Accesses:    %d\n", len(change.Access))
			fmt.Printf("Root before: %s\n", change.StateBefore.StateRoot().Hex())
			fmt.Printf("Root after:  %s\n", change.StateAfter.StateRoot().Hex())
			fmt.Printf("Bundle:      %s\n", outDir)
		},
	}
	traceCmd.Flags().Uint64Var(&entry, "entry", 0, "Entry address (0 = ELF entrypoint)")
	traceCmd.Flags().Uint64Var(&exitpoint, "exit", 0, "Exit address (0 = architecture default)")
	traceCmd.Flags().Uint64Var(&timeout, "timeout", 0, "Timeout in microseconds (0 = none)")
	traceCmd.Flags().Uint64Var(&step, "step", 0, "Untraced instructions to run before the traced one")
	traceCmd.Flags().StringVar(&outDir, "out", "trace_output", "Output directory for the JSON bundle")
	traceCmd.Flags().StringVar(&storePath, "store", "", "Optional LevelDB trace store path")

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("steptrace %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}

	rootCmd.AddCommand(runCmd, traceCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup builds the emulator from config, reads the binary and loads it with
// a Linux runner attached.
func setup(configPath, binaryPath string) (*emulator.Emulator, emulator.LoadResult) {
	config := emulator.DefaultConfig()
	if configPath != "" {
		var err error
		config, err = emulator.LoadConfig(configPath)
		if err != nil {
			fmt.Printf("Config failed: %v\n", err)
			os.Exit(1)
		}
	}

	image, err := os.ReadFile(binaryPath)
	if err != nil {
		fmt.Printf("Read binary failed: %v\n", err)
		os.Exit(1)
	}

	emu, err := emulator.New(config, arch.MIPS32{}, emulator.NewLinuxRunner())
	if err != nil {
		fmt.Printf("Create emulator failed: %v\n", err)
		os.Exit(1)
	}
	info, err := emu.Load(image, []string{binaryPath}, nil)
	if err != nil {
		fmt.Printf("Load failed: %v\n", err)
		os.Exit(1)
	}
	return emu, info
}
