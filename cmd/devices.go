package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/screencap/internal/audio"
	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/geometry"
	"github.com/smazurov/screencap/internal/logging"
)

// Inventory is what the devices command reports.
type Inventory struct {
	Monitors []geometry.Monitor `json:"monitors"`
	Combined *capture.Rect      `json:"combined,omitempty"`
	Audio    []audio.Device     `json:"audio"`
	Codecs   []capture.Codec    `json:"codecs"`
}

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var opts captureOptions
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List monitors, audio sources and codecs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := opts.load(cmd); err != nil {
				fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
				os.Exit(1)
			}
			logger := logging.GetLogger("devices")

			monitors, err := monitorProvider(opts.Display)
			if err != nil {
				logger.Error("Invalid display backend", "error", err)
				os.Exit(2)
			}
			enum, err := audio.New(audio.Backend(opts.AudioBackend))
			if err != nil {
				logger.Error("Invalid audio backend", "error", err)
				os.Exit(2)
			}

			inv, err := collectInventory(cmd.Context(), monitors, enum)
			if err != nil {
				logger.Error("Failed to list monitors", "error", err)
				os.Exit(1)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(inv); err != nil {
					logger.Error("Failed to encode inventory", "error", err)
					os.Exit(1)
				}
				return
			}
			printInventory(os.Stdout, inv)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of tables")
	opts.addStackFlags(cmd)

	return cmd
}

// collectInventory queries the providers. Audio errors are logged and
// leave the audio list empty; monitor errors are returned.
func collectInventory(ctx context.Context, monitors geometry.MonitorProvider, enum audio.Enumerator) (Inventory, error) {
	inv := Inventory{Codecs: capture.Codecs}

	list, err := monitors.Monitors(ctx)
	if err != nil {
		return Inventory{}, err
	}
	inv.Monitors = list
	r, ok, err := geometry.Combined(list)
	if err != nil {
		return Inventory{}, err
	}
	if ok {
		inv.Combined = &r
	}

	devices, err := enum.Devices(ctx)
	if err != nil {
		logging.GetLogger("devices").Warn("Failed to list audio devices", "backend", enum.Backend(), "error", err)
	}
	inv.Audio = devices
	return inv, nil
}

func printInventory(w io.Writer, inv Inventory) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "MONITOR\tNAME\tGEOMETRY\tPRIMARY")
	for i, m := range inv.Monitors {
		fmt.Fprintf(tw, "%d\t%s\t%dx%d+%d+%d\t%t\n", i, m.Name, m.Width, m.Height, m.X, m.Y, m.Primary)
	}
	if inv.Combined != nil {
		fmt.Fprintf(tw, "all\t-\t%s\t-\n", inv.Combined)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "AUDIO\tCLASS\tCHANNELS\tDESCRIPTION")
	for _, d := range inv.Audio {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.Handle, d.Class, d.Channels, d.Description)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CODEC\tEXTENSION\tADVANCED\tDESCRIPTION")
	for _, c := range inv.Codecs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.Name, c.Extension, c.Advanced, c.Description)
	}
	tw.Flush()
}
