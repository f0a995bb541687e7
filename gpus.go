package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"go_waifu2x/upscaler"
	"go_waifu2x/w2xruntime"
)

func newGPUsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gpus",
		Short: "List GPU devices and the tile sizes they support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gpu, err := w2xruntime.NewGPUContext()
			if err != nil {
				return err
			}
			defer gpu.Close()
			return printGPUs(cmd.OutOrStdout(), gpu)
		},
	}
}

// printGPUs reports each device's heap budget and the tile size every
// model would use on it.
func printGPUs(w io.Writer, gpu *w2xruntime.GPUContext) error {
	dim := color.New(color.FgHiBlack)
	fmt.Fprintf(w, "Backend: %s\n", w2xruntime.BackendInfo())

	n := gpu.DeviceCount()
	if n == 0 {
		color.New(color.FgYellow).Fprintln(w, "  ⚠ no GPU devices, upscaling runs on the CPU")
		return nil
	}

	for id := 0; id < n; id++ {
		budget, err := gpu.HeapBudget(id)
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(w, "  ✓ GPU %d", id)
		dim.Fprintf(w, " - heap budget %d MB\n", budget)
		for _, m := range upscaler.AllModelTypes() {
			dim.Fprintf(w, "      %-14s tile %d\n", m.String(), m.TileSizeForBudget(budget))
		}
	}
	return nil
}
