package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/screencap/internal/capture"
	"github.com/smazurov/screencap/internal/logging"
	"github.com/smazurov/screencap/internal/pipeline"
	"github.com/smazurov/screencap/internal/resolver"
)

// CodecReport is the outcome of building a pipeline with one codec.
type CodecReport struct {
	Codec    string `toml:"codec"`
	Element  string `toml:"element,omitempty"`
	Advanced bool   `toml:"advanced"`
	OK       bool   `toml:"ok"`
	Error    string `toml:"error,omitempty"`
}

// ValidationReport is written by validate --output.
type ValidationReport struct {
	Engine string        `toml:"engine"`
	Mode   string        `toml:"mode"`
	Codecs []CodecReport `toml:"codecs"`
}

// CreateValidateCmd creates the validate command.
func CreateValidateCmd() *cobra.Command {
	var opts captureOptions
	var mode, output string
	var printDesc, allCodecs bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Build a pipeline without running it",
		Long: `Resolves the selection and composes the pipeline, reporting configuration errors and ` +
			`element factories the engine does not provide. With --all-codecs every codec in the ` +
			`catalog is tried for the chosen mode.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := opts.load(cmd); err != nil {
				fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
				os.Exit(1)
			}
			logger := logging.GetLogger("validate")

			m, err := capture.ParseMode(mode)
			if err != nil {
				logger.Error("Invalid mode", "error", err)
				os.Exit(2)
			}
			stackOpts, err := opts.stackOptions()
			if err != nil {
				logger.Error("Invalid capture options", "error", err)
				os.Exit(2)
			}
			stack, err := NewStack(stackOpts)
			if err != nil {
				logger.Error("Failed to set up capture", "error", err)
				os.Exit(1)
			}
			sel, err := opts.selections(m)
			if err != nil {
				logger.Error("Invalid selection", "error", err)
				os.Exit(2)
			}

			if !allCodecs {
				g, err := composeGraph(cmd.Context(), stack.Resolver, stack.Builder, sel)
				if err != nil {
					logger.Error("Pipeline is not valid", "error", err, "kind", capture.KindOf(err))
					os.Exit(1)
				}
				if printDesc {
					fmt.Println(pipeline.Describe(g, nil))
					return
				}
				fmt.Printf("pipeline ok: %d stages, engine %s\n", len(g.Stages()), stack.EngineName)
				return
			}

			report := ValidationReport{
				Engine: stack.EngineName,
				Mode:   string(m),
				Codecs: checkCodecs(cmd.Context(), stack.Resolver, stack.Builder, sel),
			}
			writeReportTable(os.Stdout, report)
			if output != "" {
				if err := writeReportFile(output, report); err != nil {
					logger.Error("Failed to write report", "path", output, "error", err)
					os.Exit(1)
				}
				logger.Info("Report written", "path", output)
			}
			for _, c := range report.Codecs {
				if !c.OK && !c.Advanced {
					os.Exit(1)
				}
			}
		},
	}

	f := cmd.Flags()
	f.StringVar(&mode, "mode", string(capture.ModeScreencast), "Capture mode to validate")
	f.BoolVar(&printDesc, "print", false, "Print the gst-launch description of the pipeline")
	f.BoolVar(&allCodecs, "all-codecs", false, "Try every codec in the catalog")
	f.StringVarP(&output, "output", "o", "", "Write the --all-codecs report as TOML")
	opts.addStackFlags(cmd)
	opts.addEncodeFlags(cmd)
	opts.addTargetFlags(cmd)

	return cmd
}

func composeGraph(ctx context.Context, res *resolver.Resolver, b *pipeline.Builder, sel resolver.Selections) (*pipeline.Graph, error) {
	req, err := res.Resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	return b.Build(req)
}

// checkCodecs composes sel once per catalog codec. Advanced codecs are
// allowed for the check.
func checkCodecs(ctx context.Context, res *resolver.Resolver, b *pipeline.Builder, sel resolver.Selections) []CodecReport {
	reports := make([]CodecReport, 0, len(capture.Codecs))
	for _, c := range capture.Codecs {
		s := sel
		s.Codec = c.ID
		s.AllowAdvanced = true

		r := CodecReport{Codec: c.Name, Element: c.Element, Advanced: c.Advanced}
		if _, err := composeGraph(ctx, res, b, s); err != nil {
			r.Error = err.Error()
		} else {
			r.OK = true
		}
		reports = append(reports, r)
	}
	return reports
}

func writeReportTable(w io.Writer, report ValidationReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CODEC\tELEMENT\tADVANCED\tSTATUS")
	for _, c := range report.Codecs {
		element := c.Element
		if element == "" {
			element = "-"
		}
		status := "ok"
		if !c.OK {
			status = c.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.Codec, element, c.Advanced, status)
	}
	tw.Flush()
}

func writeReportFile(path string, report ValidationReport) error {
	data, err := toml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
