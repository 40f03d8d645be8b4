package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/reading"
	"github.com/srg/blesense/internal/ringchan"
	"github.com/srg/blesense/scanner"
)

// watchBufferSize bounds the readings waiting to be printed; the oldest are dropped first.
const watchBufferSize = 64

type watchFlags struct {
	duration time.Duration
	format   string
	allow    []string
	history  uint32
}

func newWatchCmd() *cobra.Command {
	flags := &watchFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream readings broadcast by sensors",
		Long: `Listens for sensor broadcasts and prints every decoded reading as it arrives.
No connection is made. Runs until Ctrl+C or --duration elapses, then prints the
most recent readings kept in the history buffer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, flags)
		},
	}

	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "Stop after this long (0 for until Ctrl+C)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().StringSliceVar(&flags.allow, "allow", nil, "Only show readings from these addresses")
	cmd.Flags().Uint32Var(&flags.history, "history", 0, "Number of recent readings kept for the exit summary (default from config history_size)")
	return cmd
}

type watchPrinter struct {
	out    io.Writer
	json   bool
	name   *color.Color
	value  *color.Color
	device *color.Color
}

func newWatchPrinter(out io.Writer, jsonLines bool) *watchPrinter {
	return &watchPrinter{
		out:    out,
		json:   jsonLines,
		name:   color.New(color.FgCyan),
		value:  color.New(color.FgGreen, color.Bold),
		device: color.New(color.FgHiBlack),
	}
}

func (p *watchPrinter) print(r reading.Reading) {
	if p.json {
		data, err := json.Marshal(r)
		if err == nil {
			fmt.Fprintln(p.out, string(data))
		}
		return
	}
	fmt.Fprintf(p.out, "%s  %s %s%s  %s\n",
		r.Time.Format("15:04:05"),
		p.name.Sprintf("%-12s", r.Name),
		p.value.Sprintf("%g", r.Value),
		r.Unit,
		p.device.Sprintf("[%s]", r.Device.DisplayName()),
	)
}

func runWatch(cmd *cobra.Command, flags *watchFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cfg, flags.format)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	size := cfg.HistorySize
	if flags.history > 0 {
		size = flags.history
	}
	history, err := reading.NewHistory(size)
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
	if flags.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, flags.duration)
		defer stop()
	}

	out := cmd.OutOrStdout()
	printer := newWatchPrinter(out, format == "json")
	stream := ringchan.New[reading.Reading](watchBufferSize)

	printed := make(chan struct{})
	groutine.Go(ctx, logger, "watch-printer", func(context.Context) {
		defer close(printed)
		for r := range stream.C() {
			printer.print(r)
		}
	})

	s := scanner.NewScanner(adapter, logger, scanner.WithPowerOnTimeout(cfg.PowerOnTimeout))
	scanErr := s.ScanReadings(ctx, scanner.Options{AllowList: mergeAllowList(cfg, flags.allow)}, func(r reading.Reading) {
		if err := history.Add(r); err != nil {
			logger.WithError(err).Warn("Failed to record reading")
		}
		if stream.Send(r) {
			logger.Debug("Output is falling behind, dropped oldest pending reading")
		}
	})

	stream.Close()
	<-printed

	if scanErr != nil {
		return scanErr
	}
	if format == "table" {
		return displayWatchSummary(out, history, stream.Stats(), logger)
	}
	return nil
}

func displayWatchSummary(out io.Writer, history *reading.History, stats ringchan.Stats, logger *logrus.Logger) error {
	recent := history.Drain()

	fmt.Fprintf(out, "\n%d readings received", history.Added())
	if stats.Overwritten > 0 {
		fmt.Fprintf(out, ", %d not displayed", stats.Overwritten)
	}
	if evicted := history.Overwritten(); evicted > 0 {
		fmt.Fprintf(out, ", %d evicted from history", evicted)
	}
	fmt.Fprintln(out)

	logger.WithFields(logrus.Fields{
		"received":  history.Added(),
		"dropped":   stats.Overwritten,
		"displayed": stats.Written - stats.Overwritten,
	}).Debug("Watch finished")

	if len(recent) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEVICE\tNAME\tVALUE")
	for _, r := range recent {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g%s\n", r.Time.Format("15:04:05"), r.Device.DisplayName(), r.Name, r.Value, r.Unit)
	}
	return w.Flush()
}
