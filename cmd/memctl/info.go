package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/krinkinmu/aarch64/fdt"
)

var infoCmd = &cobra.Command{
	Use:   "info <dtb>",
	Short: "Show a device tree blob's header, memory and reservations",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func loadBlob(path string) (*fdt.Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	blob, err := fdt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return blob, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	blob, err := loadBlob(args[0])
	if err != nil {
		return err
	}

	h := blob.Header()
	fmt.Println(header("Header"))
	fmt.Printf("  version:       %d (last compatible %d)\n",
		h.Version, h.LastCompVersion)
	fmt.Printf("  total size:    %d bytes\n", h.TotalSize)
	fmt.Printf("  boot cpu:      %d\n", blob.BootCPU())
	if verbose {
		fmt.Printf("  struct block:  %d bytes at %#x\n",
			h.SizeDTStruct, h.OffDTStruct)
		fmt.Printf("  strings block: %d bytes at %#x\n",
			h.SizeDTStrings, h.OffDTStrings)
	}

	regions, err := blob.MemoryRegions()
	if err != nil {
		return err
	}
	fmt.Println(header("Memory"))
	var total uint64
	for _, r := range regions {
		fmt.Printf("  [%#012x, %#012x)  %s\n",
			r.Begin, r.End(), dim(formatSize(r.Size)))
		total += r.Size
	}
	fmt.Printf("  total: %s\n", formatSize(total))

	fmt.Println(header("Reserved"))
	if len(blob.Reserved()) == 0 {
		fmt.Println(dim("  none"))
	}
	for _, r := range blob.Reserved() {
		fmt.Printf("  [%#012x, %#012x)  %s\n",
			r.Begin, r.End(), dim(formatSize(r.Size)))
	}
	return nil
}

func formatSize(n uint64) string {
	switch {
	case n >= 1<<30 && n%(1<<30) == 0:
		return fmt.Sprintf("%d GiB", n>>30)
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MiB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KiB", n>>10)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
