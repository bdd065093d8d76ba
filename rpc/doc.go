// Package rpc provides the communication layer between admin clients and a
// shardctl node's admin server, carrying the command-catalogue requests
// across network boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol and configuration structures.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: AdminClient, one method per command-catalogue row, allowing
//     applications to drive a remote node transparently.
//
//   - server: the admin RPC server and its Dispatcher, which maps incoming
//     requests onto internal/admin.Handler methods.
package rpc
