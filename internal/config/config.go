// Package config defines the single immutable configuration value built at
// process start and threaded explicitly into the handler and every
// orchestrator.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Config holds every configuration knob for the node.
type Config struct {
	// DataDir is the base directory; meta_db/, <db-name>/ and s3_tmp/ live under it.
	DataDir string

	// Endpoint is the address the RPC server listens on (e.g. "0.0.0.0:8080", "/tmp/shardctl.sock").
	Endpoint string
	// TimeoutSecond bounds RPC read/write deadlines.
	TimeoutSecond int64

	// DFSNameNode is the distributed-filesystem environment's name-node URI.
	DFSNameNode string

	// MaxConcurrentTransfers bounds the Concurrency Gate.
	MaxConcurrentTransfers int
	// DownloadBandwidthCapMBps is the global object-store download rate cap
	// setting (0 = unlimited). It is only printed by String; no transfer reads
	// it, so downloads are limited by each request's own rate limit alone.
	DownloadBandwidthCapMBps float64

	// ScratchDirectIO is the O_DIRECT-style scratch staging toggle. It is only
	// printed by String; scratch staging always uses ordinary file I/O.
	ScratchDirectIO bool

	// AllowOverlappingKeysDefault is the global default for addExternalFiles overlap handling.
	AllowOverlappingKeysDefault bool
	// SegmentsAllowingOverlap lists segments that always allow overlap regardless of the default.
	SegmentsAllowingOverlap []string

	// CompactAfterIngest requests a full-range compaction after a successful bulk ingest.
	CompactAfterIngest bool
	// SnapshotFileSuffix identifies which objects under a bulk-ingest path prefix
	// are immutable pre-sorted table files versus ignorable clutter.
	SnapshotFileSuffix string

	// MetadataCheckpointInterval is the number of event-log messages between checkpoints.
	MetadataCheckpointInterval int
	// EventLogConsumerTimeoutSecond is the per-poll consumer timeout setting.
	// It is only printed by String; the ingestor does not read it and puts no
	// timeout on its consumer calls.
	EventLogConsumerTimeoutSecond int64
	// LogSamplingFrequency is the per-message log sampling setting (one in
	// every N). It is only printed by String; no component reads it.
	LogSamplingFrequency int

	// LogLevel controls the ambient logger (debug, info, warn, error).
	LogLevel string
}

// AllowsOverlap reports whether segment is allowed to ingest overlapping keys.
func (c *Config) AllowsOverlap(segment string) bool {
	if c.AllowOverlappingKeysDefault {
		return true
	}
	for _, s := range c.SegmentsAllowingOverlap {
		if s == segment {
			return true
		}
	}
	return false
}

// Validate rejects configurations that would make every downstream component
// unsafe to construct (e.g. a non-positive concurrency cap).
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data-dir must not be empty")
	}
	if c.MaxConcurrentTransfers <= 0 {
		return fmt.Errorf("max-concurrent-transfers must be positive, got %d", c.MaxConcurrentTransfers)
	}
	if c.MetadataCheckpointInterval <= 0 {
		return fmt.Errorf("metadata-checkpoint-interval must be positive, got %d", c.MetadataCheckpointInterval)
	}
	return nil
}

// String renders the configuration in the section/field style the prior
// ServerConfig.String() uses.
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(strings.ToUpper(title))
		sb.WriteString("\n")
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-28s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("DFS Name Node", c.DFSNameNode)

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Object Store")
	addField("Max Concurrent Transfers", strconv.Itoa(c.MaxConcurrentTransfers))
	addField("Download Cap", fmt.Sprintf("%.2f MiB/s", math.Max(0, c.DownloadBandwidthCapMBps)))
	addField("Scratch Direct I/O", strconv.FormatBool(c.ScratchDirectIO))

	addSection("Bulk Ingest")
	addField("Allow Overlap (default)", strconv.FormatBool(c.AllowOverlappingKeysDefault))
	addField("Segments Allowing Overlap", strings.Join(c.SegmentsAllowingOverlap, ","))
	addField("Compact After Ingest", strconv.FormatBool(c.CompactAfterIngest))

	addSection("Event Log")
	addField("Checkpoint Interval (msgs)", strconv.Itoa(c.MetadataCheckpointInterval))
	addField("Consumer Timeout", fmt.Sprintf("%d sec", c.EventLogConsumerTimeoutSecond))
	addField("Log Sampling Frequency", strconv.Itoa(c.LogSamplingFrequency))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
