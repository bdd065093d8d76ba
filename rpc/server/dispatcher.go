package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/shardctl/internal/admin"
	"github.com/ValentinKolb/shardctl/rpc/common"
)

// Dispatcher maps a decoded wire Message onto the corresponding
// internal/admin.Handler method, decoding Message.Value into the matching
// request payload and encoding the result back into a response Message.
type Dispatcher struct {
	h *admin.Handler
}

// NewDispatcher creates a Dispatcher over an already-wired Handler.
func NewDispatcher(h *admin.Handler) *Dispatcher {
	return &Dispatcher{h: h}
}

// Handle processes one request message and returns the response message.
// It never returns nil.
func (d *Dispatcher) Handle(req *common.Message) *common.Message {
	ctx := context.Background()

	switch req.MsgType {

	case common.MsgTAddDB:
		var p common.AddDBPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.AddDB(ctx, admin.AddDBRequest{
			Name:         req.Key,
			Segment:      p.Segment,
			UpstreamAddr: p.UpstreamAddr,
			Role:         p.Role,
			Overwrite:    p.Overwrite,
		})
		return result(common.MsgTAddDB, nil, err)

	case common.MsgTCloseDB:
		err := d.h.CloseDB(ctx, req.Key)
		return result(common.MsgTCloseDB, nil, err)

	case common.MsgTClearDB:
		var p common.ClearDBPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.ClearDB(ctx, req.Key, p.Reopen)
		return result(common.MsgTClearDB, nil, err)

	case common.MsgTChangeRoleAndUpstream:
		var p common.ChangeRoleAndUpstreamPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.ChangeRoleAndUpstream(ctx, req.Key, p.Role, p.UpstreamAddr)
		return result(common.MsgTChangeRoleAndUpstream, nil, err)

	case common.MsgTBackupDB:
		err := d.h.BackupDB(ctx, req.Key)
		return result(common.MsgTBackupDB, nil, err)

	case common.MsgTRestoreDB:
		var p common.RestoreDBPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.RestoreDB(ctx, req.Key, p.Segment, p.UpstreamAddr)
		return result(common.MsgTRestoreDB, nil, err)

	case common.MsgTBackupDBToObjectStore:
		var p common.BackupDBToObjectStorePayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.BackupDBToObjectStore(ctx, req.Key, p.Bucket, p.RateLimitMBps)
		return result(common.MsgTBackupDBToObjectStore, nil, err)

	case common.MsgTRestoreDBFromObjectStore:
		var p common.RestoreDBFromObjectStorePayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.RestoreDBFromObjectStore(ctx, req.Key, p.Segment, p.Bucket, p.RateLimitMBps, p.UpstreamAddr)
		return result(common.MsgTRestoreDBFromObjectStore, nil, err)

	case common.MsgTAddObjectStoreFilesToDB:
		var p common.AddObjectStoreFilesPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.AddObjectStoreFilesToDB(ctx, admin.AddObjectStoreFilesRequest{
			Name:          req.Key,
			Segment:       p.Segment,
			Bucket:        p.Bucket,
			Path:          p.Path,
			RateLimitMBps: p.RateLimitMBps,
			CompactAfter:  p.CompactAfter,
		})
		return result(common.MsgTAddObjectStoreFilesToDB, nil, err)

	case common.MsgTStartMessageIngestion:
		var p common.StartMessageIngestionPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.StartMessageIngestion(ctx, admin.StartMessageIngestionRequest{
			Name:                     req.Key,
			Topic:                    p.Topic,
			BrokerSetRef:             p.BrokerSetRef,
			DesiredReplayTimestampMs: p.DesiredReplayTimestampMs,
			DecodePayload:            p.DecodePayload,
		})
		return result(common.MsgTStartMessageIngestion, nil, err)

	case common.MsgTStopMessageIngestion:
		err := d.h.StopMessageIngestion(ctx, req.Key)
		return result(common.MsgTStopMessageIngestion, nil, err)

	case common.MsgTGetSequenceNumber:
		seq, err := d.h.GetSequenceNumber(ctx, req.Key)
		if err != nil {
			return result(common.MsgTGetSequenceNumber, nil, err)
		}
		return result(common.MsgTGetSequenceNumber, common.GetSequenceNumberResult{SequenceNumber: seq}, nil)

	case common.MsgTCheckDB:
		res, err := d.h.CheckDB(ctx, req.Key)
		if err != nil {
			return result(common.MsgTCheckDB, nil, err)
		}
		return result(common.MsgTCheckDB, common.CheckDBResult{
			SequenceNumber:        res.SequenceNumber,
			WALTTLSeconds:         res.WALTTLSeconds,
			IsPrimary:             res.IsPrimary,
			LastUpdateTimestampMs: res.LastUpdateTimestampMs,
		}, nil)

	case common.MsgTSetDBOptions:
		var p common.SetDBOptionsPayload
		if err := req.DecodeValue(&p); err != nil {
			return common.NewErrorResponse(err.Error())
		}
		err := d.h.SetDBOptions(ctx, req.Key, p.Options)
		return result(common.MsgTSetDBOptions, nil, err)

	case common.MsgTCompactDB:
		err := d.h.CompactDB(ctx, req.Key)
		return result(common.MsgTCompactDB, nil, err)

	case common.MsgTPing:
		return result(common.MsgTPing, common.PingResult{Message: d.h.Ping()}, nil)

	case common.MsgTDumpStats:
		return result(common.MsgTDumpStats, common.DumpStatsResult{Text: d.h.DumpStats()}, nil)

	default:
		return common.NewErrorResponse(fmt.Sprintf("unsupported message type: %s", req.MsgType))
	}
}

// result builds a response message: an error response if err is non-nil,
// otherwise a success response carrying payload (which may be nil). Error
// responses carry the typed wire-level code alongside the message text when
// err is (or wraps) an *admin.Error.
func result(msgType common.MessageType, payload any, err error) *common.Message {
	if err != nil {
		if e, ok := admin.AsError(err); ok {
			return common.NewErrorResponseWithCode(err.Error(), string(e.ExternalCode()))
		}
		return common.NewErrorResponse(err.Error())
	}
	return common.NewResponse(msgType, payload)
}
