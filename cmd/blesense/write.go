package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/scanner"
	"github.com/srg/blesense/session"
)

const exampleDeviceAddress = "A4:C1:38:00:11:22"

type writeFlags struct {
	setting string
	command string
	code    string
	format  string
}

// writeResult is the JSON shape of a write run.
type writeResult struct {
	Address  string `json:"address"`
	Channel  string `json:"channel"`
	Request  string `json:"request"`
	Response string `json:"response"`
}

func newWriteCmd() *cobra.Command {
	flags := &writeFlags{}
	cmd := &cobra.Command{
		Use:   "write <device-address>",
		Short: "Send a setting or command and print the response",
		Long: fmt.Sprintf(`Connects to a sensor, runs the initialization handshake, writes one payload
and waits for the notification whose first byte matches --code.

Examples:
  # Send a setting and wait for response code 0x01
  blesense write %s --setting 0510 --code 01

  # Send a command on the data channel
  blesense write %s --command "20 01" --code 0x81`, exampleDeviceAddress, exampleDeviceAddress),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.setting, "setting", "", "Hex payload for the settings channel")
	cmd.Flags().StringVar(&flags.command, "command", "", "Hex payload for the data channel")
	cmd.Flags().StringVar(&flags.code, "code", "", "Expected response code, one hex byte (e.g. 01 or 0x81)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format (table, json)")
	cmd.MarkFlagsMutuallyExclusive("setting", "command")
	cmd.MarkFlagsOneRequired("setting", "command")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func runWrite(cmd *cobra.Command, address string, flags *writeFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormat(cfg, flags.format)
	if err != nil {
		return err
	}

	channel, raw := "settings", flags.setting
	if flags.command != "" {
		channel, raw = "data", flags.command
	}
	payload, err := parseHexPayload(raw)
	if err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	code, err := parseResponseCode(flags.code)
	if err != nil {
		return err
	}
	if device.NormalizeAddress(address) == "" {
		return fmt.Errorf("invalid device address %q", address)
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

	if err := scanner.NewScanner(adapter, logger, scanner.WithPowerOnTimeout(cfg.PowerOnTimeout)).WaitPoweredOn(ctx); err != nil {
		return err
	}

	progress := progressFor(cmd.ErrOrStderr(), func(w io.Writer) *ProgressPrinter {
		return NewProgressPrinter(w, fmt.Sprintf("Writing %d bytes to %s", len(payload), address), "Connecting")
	})
	defer progress.Stop()

	sess := session.New(adapter, device.NewIdentity("", address, ""), logger)
	defer func() {
		if err := sess.Disconnect(); err != nil {
			logger.WithError(err).Warn("Disconnect failed")
		}
	}()

	connCtx, connCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connCancel()
	if err := sess.Connect(connCtx); err != nil {
		return err
	}

	progress.SetPhase("Waiting for response")
	cmdCtx, cmdCancel := context.WithTimeout(ctx, cfg.CommandTimeout)
	defer cmdCancel()

	var resp []byte
	if channel == "settings" {
		resp, err = sess.WriteSetting(cmdCtx, payload, code)
	} else {
		resp, err = sess.WriteCommand(cmdCtx, payload, code)
	}
	progress.Stop()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, writeResult{
			Address:  sess.Identity().Address,
			Channel:  channel,
			Request:  hex.EncodeToString(payload),
			Response: hex.EncodeToString(resp),
		})
	}
	fmt.Fprintf(out, "Response: %s\n", hex.EncodeToString(resp))
	return nil
}

// parseHexPayload accepts hex with optional spaces, colons, dashes and 0x prefixes.
func parseHexPayload(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(s)
	if cleaned == "" {
		return nil, fmt.Errorf("payload is empty")
	}
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// parseResponseCode parses a single hex byte such as "01" or "0x81".
func parseResponseCode(s string) (byte, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(trimmed, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid response code %q: must be one hex byte", s)
	}
	return byte(v), nil
}
