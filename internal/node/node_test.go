// SPDX-License-Identifier: AGPL-3.0-or-later

package node_test

import (
	"log/slog"
	"testing"

	"github.com/adrcs/ip400/internal/chat"
	"github.com/adrcs/ip400/internal/config"
	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/node"
	"github.com/adrcs/ip400/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHardware struct {
	idle     bool
	lockOnTX bool
}

func (f *fakeHardware) Strobe(radio.Command)           {}
func (f *fakeHardware) FSMIdle() bool                  { return f.idle }
func (f *fakeHardware) FSMLockOnTX() bool              { return f.lockOnTX }
func (f *fakeHardware) SetTestMode(radio.TestMode)     {}
func (f *fakeHardware) EnableGreenIndicator(bool)      {}
func (f *fakeHardware) EnableTXIndicator(bool)         {}

func testConfig() *config.Config {
	return &config.Config{
		LogLevel: config.LogLevelInfo,
		Station:  config.Station{Callsign: "NOCALL"},
		Radio:    config.Radio{ManufacturerID1: 0xAABBCCDD, OutputPowerDBm: 14},
		Scheduler: config.Scheduler{
			TickMillis:         8,
			BeaconIntervalMins: 1,
		},
		HostLink: config.HostLink{
			ListenAddr:    "127.0.0.1:0",
			RemoteAddr:    "127.0.0.1:0",
			LivenessTicks: 10,
		},
	}
}

func TestNewDerivesLocalAddress(t *testing.T) {
	t.Parallel()

	hw := &fakeHardware{idle: true, lockOnTX: true}
	n := node.New(testConfig(), hw, chat.LogSink{Log: slog.Default()}, slog.Default())

	assert.NotZero(t, n.Local.Call)
	assert.Equal(t, byte(172), n.IPv4[0])
}

func TestStepAdvancesEngineToRxActive(t *testing.T) {
	t.Parallel()

	hw := &fakeHardware{idle: true, lockOnTX: true}
	n := node.New(testConfig(), hw, chat.LogSink{Log: slog.Default()}, slog.Default())

	n.Step()
	assert.Equal(t, radio.RxActive, n.Engine.State())
}

func TestBeaconEmissionEnqueuesBroadcastFrame(t *testing.T) {
	t.Parallel()

	hw := &fakeHardware{idle: true, lockOnTX: true}
	n := node.New(testConfig(), hw, chat.LogSink{Log: slog.Default()}, slog.Default())
	n.Beacon.Configure(1, 60000) // ticksPerPeriod = 1 * (60000/60000) = 1: emits on first Step

	f := n.Beacon.Step()
	require.NotNil(t, f)
	assert.True(t, f.Dest.IsBroadcast())
	assert.Equal(t, frame.CodingBeacon, f.Flags.Coding())
}
