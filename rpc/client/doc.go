// Package client implements the RPC client for the admin control plane.
// AdminClient provides one method per command-catalogue row, forwarding
// each call to the admin server via the configured transport and
// serializer.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	c, err := client.NewAdminClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.AddDB("db_0", "segment-a", "", "primary", false); err != nil {
//	  log.Fatal(err)
//	}
//
// Thread Safety:
//
//	AdminClient is safe for concurrent use from multiple goroutines; the
//	underlying transport implementations handle connection pooling.
package client
