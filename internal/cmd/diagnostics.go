// SPDX-License-Identifier: AGPL-3.0-or-later

package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adrcs/ip400/internal/config"
	"github.com/adrcs/ip400/internal/control"
	"github.com/spf13/cobra"
)

// defaultControlAddr matches the port offset runRoot binds the control
// server to: the metrics port plus one.
const defaultControlAddr = "127.0.0.1:9401"

const controlClientTimeout = 5 * time.Second

func controlFlag(cmd *cobra.Command) *string {
	return cmd.Flags().String("control-addr", defaultControlAddr, "address of a running node's control server")
}

// newStatsCommand prints a running node's frame statistics.
func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "print frame statistics from a running node",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := cmd.Flags().GetString("control-addr")
			if err != nil {
				return err
			}
			var stats control.Stats
			if err := controlGet(addr, "/v1/stats", &stats); err != nil {
				return err
			}
			fmt.Printf("tx=%d rx=%d ok=%d dropped=%d duplicates=%d repeated=%d beacons=%d crc_errors=%d timeouts=%d pll=%d vco=%d sequencer=%d\n",
				stats.TxCount, stats.RxCount, stats.OKFrames, stats.Dropped, stats.Duplicates,
				stats.Repeated, stats.Beacons, stats.CRCErrors, stats.Timeouts,
				stats.PLLErrors, stats.VCOErrors, stats.SequencerErrors)
			return nil
		},
	}
	controlFlag(cmd)
	return cmd
}

// newMeshCommand lists a running node's mesh table entries.
func newMeshCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mesh",
		Short:         "list mesh table entries from a running node",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := cmd.Flags().GetString("control-addr")
			if err != nil {
				return err
			}
			var entries []control.MeshEntry
			if err := controlGet(addr, "/v1/mesh", &entries); err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%08x/%04x state=%s rssi=%ddBm power=%ddBm hops=%d next_seq=%d last_heard=%s\n",
					e.Call, e.Lower, e.State, e.RSSI, e.TXPower, e.HopCount, e.NextExpSeq, e.LastHeard)
			}
			return nil
		},
	}
	controlFlag(cmd)
	return cmd
}

// newTestModeCommand switches a running node's transmit test mode
// between off, CW, and PRBS.
func newTestModeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "testmode [off|cw|prbs]",
		Short:         "switch a running node's transmit test mode",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch config.TestMode(args[0]) {
			case config.TestModeOff, config.TestModeCW, config.TestModePRBS:
			default:
				return fmt.Errorf("unknown test mode %q", args[0])
			}
			addr, err := cmd.Flags().GetString("control-addr")
			if err != nil {
				return err
			}
			return controlPost(addr, "/v1/testmode", control.TestModeRequest{Mode: args[0]}, nil)
		},
	}
	controlFlag(cmd)
	return cmd
}

// newBeaconCommand forces an immediate beacon.
func newBeaconCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "beacon",
		Short:         "force a running node to emit a beacon immediately",
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := cmd.Flags().GetString("control-addr")
			if err != nil {
				return err
			}
			var resp struct {
				Sequence uint32 `json:"sequence"`
			}
			if err := controlPost(addr, "/v1/beacon", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("beacon sent, sequence=%d\n", resp.Sequence)
			return nil
		},
	}
	controlFlag(cmd)
	return cmd
}

func controlGet(addr, path string, out any) error {
	client := &http.Client{Timeout: controlClientTimeout}
	resp, err := client.Get("http://" + addr + path)
	if err != nil {
		return fmt.Errorf("control request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("control request returned %s: %s", resp.Status, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func controlPost(addr, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	client := &http.Client{Timeout: controlClientTimeout}
	resp, err := client.Post("http://"+addr+path, "application/json", &body)
	if err != nil {
		return fmt.Errorf("control request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("control request returned %s: %s", resp.Status, respBody)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
