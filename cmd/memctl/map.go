package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krinkinmu/aarch64/boot"
)

var reserveFlags []string

var mapCmd = &cobra.Command{
	Use:   "map <dtb>",
	Short: "Render the bootstrap memory map for a device tree blob",
	Long: `map builds the memory map exactly the way the bootstrap does:
the blob's memory nodes are registered free, the /memreserve/ entries
are reserved, and any --reserve ranges stand in for firmware modules
such as the kernel image.`,
	Args: cobra.ExactArgs(1),
	RunE: runMap,
}

func init() {
	mapCmd.Flags().StringArrayVar(&reserveFlags, "reserve", nil,
		"Additional range to reserve, begin:end in hex (repeatable)")
	rootCmd.AddCommand(mapCmd)
}

// parseReserveFlag parses "0x40000000:0x40200000" into a module.
func parseReserveFlag(s string) (boot.Module, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return boot.Module{}, fmt.Errorf("bad --reserve %q: want begin:end", s)
	}
	begin, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 64)
	if err != nil {
		return boot.Module{}, fmt.Errorf("bad --reserve begin %q: %w", parts[0], err)
	}
	end, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 64)
	if err != nil {
		return boot.Module{}, fmt.Errorf("bad --reserve end %q: %w", parts[1], err)
	}
	if begin >= end {
		return boot.Module{}, fmt.Errorf("bad --reserve %q: empty range", s)
	}
	return boot.Module{Name: "cmdline", Begin: begin, End: end}, nil
}

func reserveModules() ([]boot.Module, error) {
	var modules []boot.Module
	for _, flag := range reserveFlags {
		mod, err := parseReserveFlag(flag)
		if err != nil {
			return nil, err
		}
		modules = append(modules, mod)
	}
	return modules, nil
}

func runMap(cmd *cobra.Command, args []string) error {
	blob, err := loadBlob(args[0])
	if err != nil {
		return err
	}
	modules, err := reserveModules()
	if err != nil {
		return err
	}

	m, err := boot.BuildMap(blob, modules)
	if err != nil {
		return err
	}

	fmt.Println(header("Memory map"))
	for _, r := range m.Ranges() {
		fmt.Printf("  [%#012x, %#012x)  %-8s  %s\n",
			r.Begin, r.End, status(r.Status), dim(formatSize(r.Size())))
	}
	return nil
}
