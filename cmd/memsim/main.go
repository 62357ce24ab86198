// Command memsim is the interactive host program for the memory
// allocation simulator: it wires the mmu, page table, and allocation
// orchestrator together, then runs the REPL described in spec §6.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PokkeFe/os-memsim/internal/alloc"
	"github.com/PokkeFe/os-memsim/internal/config"
	"github.com/PokkeFe/os-memsim/internal/debugserver"
	"github.com/PokkeFe/os-memsim/internal/mmu"
	"github.com/PokkeFe/os-memsim/internal/pagetable"
	"github.com/PokkeFe/os-memsim/internal/repl"
	"github.com/PokkeFe/os-memsim/internal/telemetry"
	"github.com/PokkeFe/os-memsim/internal/vaddr"
)

var rootCmd = &cobra.Command{
	Use:   "memsim <page_size>",
	Short: "Memory allocation simulator",
	Long: "memsim models an MMU and page table servicing first-fit, paged " +
		"virtual-address allocations out of a fixed physical memory region.",
	Args: cobra.ExactArgs(1),
	RunE: run,
}

func init() {
	rootCmd.Flags().String("config", "", "path to a JSON config file with simulator defaults")
	rootCmd.Flags().String("log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.Flags().String("debug-addr", "", "if set, serve a read-only JSON snapshot of MMU/page-table state on this address")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	pageSize64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("page size must be a positive integer: %w", err)
	}
	pageSize := uint32(pageSize64)
	if !vaddr.IsPowerOfTwo(pageSize) {
		return fmt.Errorf("page size %d must be a power of two", pageSize)
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if addr, _ := cmd.Flags().GetString("debug-addr"); addr != "" {
		cfg.DebugAddr = addr
	}

	tel := telemetry.Init(cfg.LogLevel, "memsim")
	tel.Log.Info("starting simulator", "page_size", pageSize, "memory_size", cfg.MemorySize)

	memory := make([]byte, cfg.MemorySize)
	pt, err := pagetable.New(pageSize)
	if err != nil {
		return err
	}
	m := mmu.New(cfg.MemorySize)
	orc := alloc.New(m, pt)
	session := repl.New(orc, memory, os.Stdout, tel.Log)

	if cfg.DebugAddr != "" {
		dbg := debugserver.New(session, cfg.DebugAddr, tel.Log)
		dbg.Start()
		tel.RegisterShutdown("debug-server", dbg.Stop)
	}
	tel.RegisterShutdown("simulator exiting", func() {
		tel.Log.Info("simulator exiting")
	})

	fmt.Fprintln(os.Stdout, repl.Banner(pageSize))

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(os.Stdout, "> ")
	for scanner.Scan() {
		if session.Execute(scanner.Text()) {
			break
		}
		fmt.Fprint(os.Stdout, "> ")
	}

	telemetry.Exit(0)
	return nil
}
