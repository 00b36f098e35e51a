// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates the node's configuration: the radio
// parameters, station identity, host-link addressing, and the ambient
// logging/metrics/tracing knobs, loaded from the environment with
// github.com/USA-RedDragon/configulator.
package config

// Radio holds the transceiver's RF parameters.
type Radio struct {
	FrequencyHz     uint64      `name:"frequency-hz" default:"433000000" description:"RF center frequency in Hz"`
	Modulation      Modulation  `name:"modulation" default:"2gfsk" description:"on-air modulation scheme"`
	DataRateBps     uint32      `name:"data-rate-bps" default:"57600" description:"on-air data rate in bits/sec"`
	DeviationHz     uint32      `name:"deviation-hz" default:"25000" description:"FSK frequency deviation in Hz"`
	BandwidthHz     uint32      `name:"bandwidth-hz" default:"100000" description:"channel bandwidth in Hz"`
	PADriveMode     PADriveMode `name:"pa-drive-mode" default:"saturated" description:"power amplifier drive mode"`
	OutputPowerDBm  int8        `name:"output-power-dbm" default:"20" description:"transmit output power in dBm"`
	SquelchDBm      int8        `name:"squelch-dbm" default:"-100" description:"receive squelch threshold in dBm"`
	USMode          bool        `name:"us-mode" default:"false" description:"allow the 420 MHz US band edge instead of 430 MHz"`
	ManufacturerID1 uint32      `name:"manufacturer-id-1" default:"0" description:"first manufacturer ID XORed to form the device-unique word"`
	ManufacturerID2 uint32      `name:"manufacturer-id-2" default:"0" description:"second manufacturer ID XORed to form the device-unique word"`
}

// Station holds the node's identity and position.
type Station struct {
	Callsign    string  `name:"callsign" default:"NOCALL" description:"station callsign, 4-6 characters"`
	Description string  `name:"description" default:"" description:"free-text station description"`
	Latitude    float64 `name:"latitude" default:"0" description:"station latitude in decimal degrees"`
	Longitude   float64 `name:"longitude" default:"0" description:"station longitude in decimal degrees"`
	Grid        string  `name:"grid" default:"" description:"Maidenhead grid square"`
}

// Mesh holds the peer directory's behavioural knobs.
type Mesh struct {
	RepeatDefault bool `name:"repeat-default" default:"true" description:"repeat-flag default for originated frames; no node component reads it (beacons always set repeat, echo responses never do)"`
	AX25Compat    bool `name:"ax25-compat" default:"false" description:"enable AX.25-style SSID compatibility matching in mesh lookups"`
	AX25SSID      byte `name:"ax25-ssid" default:"0" description:"SSID nibble matched when ax25-compat is enabled"`
	Capacity      int  `name:"capacity" default:"0" description:"mesh table capacity; 0 uses the 2 KiB region default"`
}

// HostLink holds the UDP relay addressing and liveness tuning for the
// fragment/reassembly exchange.
type HostLink struct {
	ListenAddr    string `name:"listen-addr" default:"127.0.0.1:7400" description:"local UDP address the host-link relay listens on"`
	RemoteAddr    string `name:"remote-addr" default:"127.0.0.1:7401" description:"remote host UDP address blocks are sent to"`
	LivenessTicks int    `name:"liveness-ticks" default:"250" description:"consecutive silent ticks (SPI_MAX_TIME/tick) before the peer is marked inactive"`
}

// Metrics holds the Prometheus HTTP server's bind configuration.
type Metrics struct {
	Enabled      bool   `name:"enabled" default:"true" description:"serve /metrics"`
	Bind         string `name:"bind" default:"127.0.0.1" description:"metrics server bind address"`
	Port         int    `name:"port" default:"9400" description:"metrics server port"`
	OTLPEndpoint string `name:"otlp-endpoint" default:"" description:"OTLP gRPC collector endpoint; empty disables tracing"`
}

// Scheduler holds the cooperative step-loop tuning.
type Scheduler struct {
	TickMillis         int `name:"tick-millis" default:"8" description:"cooperative scheduler tick period in milliseconds"`
	BeaconIntervalMins int `name:"beacon-interval-minutes" default:"10" description:"beacon emission period in minutes, 1-100"`
	MeshTickSeconds    int `name:"mesh-tick-seconds" default:"60" description:"mesh table aging sweep period in seconds"`
}

// Config is the node's full configuration, loaded by
// github.com/USA-RedDragon/configulator in internal/cmd/root.go.
type Config struct {
	LogLevel  LogLevel  `name:"log-level" default:"info" description:"structured logging level"`
	Station   Station   `name:"station"`
	Radio     Radio     `name:"radio"`
	Mesh      Mesh      `name:"mesh"`
	HostLink  HostLink  `name:"host-link"`
	Metrics   Metrics   `name:"metrics"`
	Scheduler Scheduler `name:"scheduler"`
}
