package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/aggregator"
	"github.com/srg/blesense/internal/reading"
	"github.com/srg/blesense/scanner"
)

type recordFlags struct {
	readings []string
	deadline time.Duration
	format   string
	allow    []string
}

// recordResult is the JSON shape of a record run.
type recordResult struct {
	Readings *reading.Set `json:"readings"`
	Missing  []string     `json:"missing"`
}

func newRecordCmd() *cobra.Command {
	flags := &recordFlags{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Collect one value per reading kind",
		Long: fmt.Sprintf(`Listens for sensor broadcasts until every requested reading has been seen
or the deadline elapses, then prints the latest value of each.
Reaching the deadline is not an error: whatever was seen is printed.

Known readings: %v`, reading.NewTLVDecoder().KnownNames()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRecord(cmd, flags)
		},
	}

	cmd.Flags().StringSliceVarP(&flags.readings, "readings", "r", nil, "Readings to collect (default from config readings)")
	cmd.Flags().DurationVar(&flags.deadline, "deadline", 0, "Give up waiting after this long (default from config record_deadline)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().StringSliceVar(&flags.allow, "allow", nil, "Only accept readings from these addresses")
	return cmd
}

func runRecord(cmd *cobra.Command, flags *recordFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cfg, flags.format)
	if err != nil {
		return err
	}

	names := cfg.Readings
	if len(flags.readings) > 0 {
		names = flags.readings
	}
	known := reading.NewTLVDecoder().KnownNames()
	for _, n := range names {
		if !slices.Contains(known, n) {
			return fmt.Errorf("unknown reading '%s': must be one of %v", n, known)
		}
	}
	deadline := cfg.RecordDeadline
	if flags.deadline > 0 {
		deadline = flags.deadline
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	adapter, release, err := openAdapter(logger)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	progress := progressFor(cmd.ErrOrStderr(), func(w io.Writer) *ProgressPrinter {
		return NewCountdownProgressPrinter(w, fmt.Sprintf("Recording %d readings", len(names)), "Listening", deadline)
	})
	defer progress.Stop()

	s := scanner.NewScanner(adapter, logger, scanner.WithPowerOnTimeout(cfg.PowerOnTimeout))
	set, err := aggregator.New(s, logger).Collect(ctx, names, deadline, scanner.Options{AllowList: mergeAllowList(cfg, flags.allow)})
	progress.Stop()
	if err != nil {
		return err
	}

	missing := []string{}
	for _, n := range names {
		if _, ok := set.Get(n); !ok && !slices.Contains(missing, n) {
			missing = append(missing, n)
		}
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, recordResult{Readings: set, Missing: missing})
	}
	return displayRecordTable(out, names, set)
}

func displayRecordTable(out io.Writer, names []string, set *reading.Set) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVALUE\tUNIT\tDEVICE")

	var printed []string
	for _, n := range names {
		if slices.Contains(printed, n) {
			continue
		}
		printed = append(printed, n)

		r, ok := set.Get(n)
		if !ok {
			fmt.Fprintf(w, "%s\t-\t-\t(not seen)\n", n)
			continue
		}
		unit := r.Unit
		if unit == "" {
			unit = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n, strconv.FormatFloat(r.Value, 'f', -1, 64), unit, r.Device.DisplayName())
	}
	return w.Flush()
}
