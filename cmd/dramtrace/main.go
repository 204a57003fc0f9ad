// Package main provides dramtrace, a standalone driver for the hybrid
// DDR/HBM memory controller: it replays an address trace through a
// dram.Controller in isolation and reports aggregate timing statistics,
// without needing a full CPU pipeline run.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sarchlab/m2sim/timing/dram"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dramtrace",
		Short: "Replay address traces against the hybrid DRAM controller",
	}
	root.AddCommand(newRunCmd(), newValidateConfigCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run <trace-file>",
		Short: "Replay a trace file of R/W addresses and print the resulting statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := dram.DefaultConfig()
			if configPath != "" {
				loaded, err := dram.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("loading dram config: %w", err)
				}
				cfg = loaded
			}

			ctrl, err := dram.NewController(cfg)
			if err != nil {
				return fmt.Errorf("building dram controller: %w", err)
			}

			entries, err := readTrace(args[0])
			if err != nil {
				return err
			}

			runTrace(ctrl, entries)

			stats := ctrl.Stats()
			fmt.Printf("requests completed: %d\n", stats.TotalIssued)
			fmt.Printf("total service time (cycles): %d\n", stats.TotalServiceTime)
			fmt.Printf("average memory access time (cycles): %.2f\n", stats.AverageMemoryAccessTime())
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a dram config JSON file (omit for the built-in defaults)")
	return cmd
}

func newValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config <config-file>",
		Short: "Load a dram config JSON file and report whether it is valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := dram.LoadConfig(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("ok: %d HBM channel(s), %d DDR channel(s)\n", cfg.HBM.Channels, cfg.DDR.Channels)
			return nil
		},
	}
}

// traceEntry is one line of a replayed trace: a load or store to lineAddr.
type traceEntry struct {
	write    bool
	lineAddr uint64
}

// readTrace parses a newline-delimited trace file. Each line is
// "R <hex-line-address>" or "W <hex-line-address>"; blank lines and lines
// starting with '#' are ignored.
func readTrace(path string) ([]traceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer f.Close()

	var entries []traceEntry
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("trace line %d: expected \"R|W <addr>\", got %q", lineNo, line)
		}
		addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("trace line %d: bad address %q: %w", lineNo, fields[1], err)
		}
		switch strings.ToUpper(fields[0]) {
		case "R":
			entries = append(entries, traceEntry{write: false, lineAddr: addr})
		case "W":
			entries = append(entries, traceEntry{write: true, lineAddr: addr})
		default:
			return nil, fmt.Errorf("trace line %d: unknown access kind %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	return entries, nil
}

// runTrace submits every entry back-to-back, advancing the cycle counter
// whenever a queue is full, then drains the controller until every request
// issued has completed.
func runTrace(ctrl *dram.Controller, entries []traceEntry) {
	pending := len(entries)
	if pending == 0 {
		return
	}

	var now uint64
	for _, e := range entries {
		pkt := &dram.Packet{LineAddr: e.lineAddr, ArrivalCycle: now}
		pkt.AddCallback(func(*dram.Packet) { pending-- })
		if e.write {
			pkt.Kind = dram.PacketWriteback
			for ctrl.AddWQ(pkt) == dram.ResultRejectFull {
				ctrl.Operate(now)
				now++
			}
		} else {
			pkt.Kind = dram.PacketLoad
			for ctrl.AddRQ(pkt) == dram.ResultRejectFull {
				ctrl.Operate(now)
				now++
			}
		}
	}

	for pending > 0 {
		ctrl.Operate(now)
		now++
	}
}
