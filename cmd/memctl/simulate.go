package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krinkinmu/aarch64/boot"
	"github.com/krinkinmu/aarch64/memory/buddy"
	"github.com/krinkinmu/aarch64/memory/ram"
)

// maxSimImage caps the hosted image so a blob describing a huge
// machine cannot exhaust the host.
const maxSimImage = 1 << 30

var simulateCmd = &cobra.Command{
	Use:   "simulate <dtb>",
	Short: "Run the allocator bootstrap against a device tree blob",
	Long: `simulate creates a hosted image of the machine's memory, runs
the full bootstrap (memory map, descriptor carve, buddy setup) and
prints what the allocator ends up with.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringArrayVar(&reserveFlags, "reserve", nil,
		"Additional range to reserve, begin:end in hex (repeatable)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	blob, err := loadBlob(args[0])
	if err != nil {
		return err
	}
	modules, err := reserveModules()
	if err != nil {
		return err
	}

	regions, err := blob.MemoryRegions()
	if err != nil {
		return err
	}
	if len(regions) == 0 {
		return fmt.Errorf("%s: no memory nodes", args[0])
	}

	base, end := regions[0].Begin, regions[0].End()
	for _, r := range regions[1:] {
		base = min(base, r.Begin)
		end = max(end, r.End())
	}
	span := end - base
	if span > maxSimImage {
		return fmt.Errorf("machine spans %s, larger than the %s simulation cap",
			formatSize(span), formatSize(maxSimImage))
	}

	img, err := ram.New(base, int(span))
	if err != nil {
		return err
	}
	defer img.Close()

	phys, m, err := boot.SetupWithBlob(img, blob, modules)
	if err != nil {
		return err
	}

	fmt.Println(header("Memory map after bootstrap"))
	for _, r := range m.Ranges() {
		fmt.Printf("  [%#012x, %#012x)  %-8s  %s\n",
			r.Begin, r.End, status(r.Status), dim(formatSize(r.Size())))
	}

	fmt.Println(header("Zones"))
	for i, z := range phys.Zones() {
		fmt.Printf("  zone %d: [%#012x, %#012x)  %s, %s free\n",
			i, z.FromAddress(), z.ToAddress(),
			formatSize(z.Pages()<<buddy.PageBits),
			formatSize(z.Available()<<buddy.PageBits))
		if verbose {
			for order, runs := range z.FreeRuns() {
				if runs == 0 {
					continue
				}
				fmt.Printf("    order %2d: %d run(s) of %s\n",
					order, runs, formatSize(uint64(buddy.PageSize)<<order))
			}
		}
	}

	fmt.Println(header("Totals"))
	fmt.Printf("  total:     %s\n", formatSize(phys.TotalPhysical()))
	fmt.Printf("  available: %s\n", formatSize(phys.AvailablePhysical()))
	return nil
}
