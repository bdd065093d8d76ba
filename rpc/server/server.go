package server

import (
	"fmt"

	"github.com/ValentinKolb/shardctl/internal/admin"
	"github.com/ValentinKolb/shardctl/rpc/common"
	"github.com/ValentinKolb/shardctl/rpc/serializer"
	"github.com/ValentinKolb/shardctl/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// targetID is the single logical destination the transport layer's
// shard-keyed framing routes every admin request to. The admin server is
// not sharded the way the distributed-store server is - one process runs
// one dispatcher - so the transport's uint64 target id is fixed rather
// than looked up per request.
const targetID uint64 = 0

// NewRPCServer creates a new admin RPC server. It dispatches every decoded
// Message to the given Handler and re-encodes the result with serializer.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//		handler,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	handler *admin.Handler,
) rpcServer {
	Logger.Infof("Created admin RPC Server")
	Logger.Infof(config.String())

	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		dispatch:   NewDispatcher(handler),
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	dispatch   *Dispatcher
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		if shardId != targetID {
			respMsg = common.NewErrorResponse(fmt.Sprintf("unknown target %d", shardId))
		} else if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			respMsg = s.dispatch.Handle(&msg)
		}

		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// Serve starts the RPC server. It wires up the transport handler and then
// blocks, listening for incoming requests.
func (s *rpcServer) Serve() error {
	s.registerTransportHandler()
	Logger.Infof("shardctl admin server setup completed successfully")
	return s.transport.Listen(s.config)
}
