// Package server implements the admin RPC server: a thin transport-facing
// shell around internal/admin.Handler. Unlike a sharded store server, the
// admin server dispatches every request through a single Dispatcher - there
// is one coordinator per node, not one store per shard.
//
// Key Components:
//
//   - Dispatcher: decodes a wire Message by MsgType, calls the matching
//     Handler method, and re-encodes the result.
//
//   - NewRPCServer: factory function wiring a Dispatcher to a transport and
//     serializer pair.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(64*1024),
//	  serializer.NewBinarySerializer(),
//	  handler,
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
package server
