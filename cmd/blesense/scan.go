package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/pkg/config"
	"github.com/srg/blesense/scanner"
	"github.com/srg/blesense/session"
)

type scanFlags struct {
	duration time.Duration
	format   string
	allow    []string
	services []string
	connect  bool
}

// scanEntry is one row of the scan result.
type scanEntry struct {
	device.Identity
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

func newScanCmd() *cobra.Command {
	flags := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover connectable sensors",
		Long: `Scans for sensors and lists every device seen once.

With --connect, each discovered device is connected to in turn, the initialization
handshake is run and the resulting connection state is reported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, flags)
		},
	}

	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "Scan duration (default from config scan_timeout; 0 there means until Ctrl+C)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")
	cmd.Flags().StringSliceVar(&flags.allow, "allow", nil, "Only report devices with these addresses")
	cmd.Flags().StringSliceVarP(&flags.services, "services", "s", nil, "Only report devices advertising one of these service UUIDs")
	cmd.Flags().BoolVar(&flags.connect, "connect", false, "Connect to each discovered device and run the handshake")
	return cmd
}

func runScan(cmd *cobra.Command, flags *scanFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cfg, flags.format)
	if err != nil {
		return err
	}

	var services []string
	if len(flags.services) > 0 {
		if services, err = device.ValidateUUID(flags.services...); err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, release, err := openAdapter(logger)
	if err != nil {
		return err
	}
	defer release()

	duration := cfg.ScanTimeout
	if flags.duration > 0 {
		duration = flags.duration
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	scanCtx := ctx
	if duration > 0 {
		var stop context.CancelFunc
		scanCtx, stop = context.WithTimeout(ctx, duration)
		defer stop()
	}

	progress := progressFor(cmd.ErrOrStderr(), func(w io.Writer) *ProgressPrinter {
		return NewCountdownProgressPrinter(w, "Scanning for sensors", "Scanning", duration)
	})
	defer progress.Stop()

	s := scanner.NewScanner(adapter, logger, scanner.WithPowerOnTimeout(cfg.PowerOnTimeout))
	found := 0
	sessions, err := s.ScanDevices(scanCtx, scanner.Options{
		AllowList: mergeAllowList(cfg, flags.allow),
		Services:  services,
	}, func(*session.Session) {
		found++
		progress.SetPhase(fmt.Sprintf("%d found", found))
	})
	progress.Stop()
	if err != nil {
		return err
	}

	entries := make([]scanEntry, 0, len(sessions))
	for _, sess := range sessions {
		entry := scanEntry{Identity: sess.Identity()}
		if flags.connect {
			entry.State, entry.Error = probe(ctx, sess, cfg, logger)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})

	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, entries)
	}
	return displayScanTable(out, entries, flags.connect)
}

// probe connects to the device, runs the handshake and disconnects again.
// The returned state is the furthest connection phase reached.
func probe(ctx context.Context, sess *session.Session, cfg *config.Config, logger *logrus.Logger) (string, string) {
	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	err := sess.Connect(connCtx)
	state := sess.LastReached().String()
	if derr := sess.Disconnect(); derr != nil {
		logger.WithError(derr).WithField("address", sess.Identity().Address).Warn("Disconnect failed")
	}
	if err != nil {
		return state, FormatUserError(err)
	}
	return state, ""
}

func displayScanTable(out io.Writer, entries []scanEntry, withState bool) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if withState {
		fmt.Fprintln(w, "NAME\tADDRESS\tSTATE\tERROR")
	} else {
		fmt.Fprintln(w, "NAME\tADDRESS")
	}
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "-"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		if withState {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, e.Address, e.State, e.Error)
		} else {
			fmt.Fprintf(w, "%s\t%s\n", name, e.Address)
		}
	}
	return w.Flush()
}

// outputFormat picks the --format flag over the config file and validates it.
func outputFormat(cfg *config.Config, flag string) (string, error) {
	format := cfg.OutputFormat
	if flag != "" {
		format = flag
	}
	for _, f := range config.OutputFormats {
		if f == format {
			return format, nil
		}
	}
	return "", fmt.Errorf("invalid format '%s': must be one of %v", format, config.OutputFormats)
}

// mergeAllowList prefers the --allow flag over the config file allow_list.
func mergeAllowList(cfg *config.Config, flag []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return cfg.AllowList
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
