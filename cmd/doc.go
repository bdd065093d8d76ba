// Package cmd implements the command-line interface for the shardctl admin
// control plane. It provides a hierarchical command structure for running a
// node's admin server and for driving it as a client.
//
// The package is organized into several subpackages:
//
//   - admin: Commands for the admin command catalogue (add-db, close-db,
//     backup/restore, bulk ingest, event-log ingestion, etc.)
//   - serve: Commands for starting and configuring a shardctl admin server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See shardctl -help for a list of all commands.
package cmd
