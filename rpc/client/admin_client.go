package client

import (
	"fmt"

	"github.com/ValentinKolb/shardctl/rpc/common"
	"github.com/ValentinKolb/shardctl/rpc/serializer"
	"github.com/ValentinKolb/shardctl/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

// targetID mirrors server.targetID: the admin server dispatches through a
// single logical target, so every client call addresses it directly.
const targetID uint64 = 0

// AdminError is a typed RPC failure: Code mirrors admin.Error.ExternalCode()
// (e.g. "DB_NOT_FOUND", "DB_EXIST") so callers can switch on the failure
// kind instead of pattern-matching the message text. Code is empty when the
// server didn't attach one (e.g. a transport/serialization failure never
// reached the dispatcher).
type AdminError struct {
	Code    string
	Message string
}

func (e *AdminError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("admin client: %s", e.Message)
	}
	return fmt.Sprintf("admin client: %s: %s", e.Code, e.Message)
}

// AdminClient is a client for the admin command catalogue. One method per
// command-catalogue row.
type AdminClient struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// NewAdminClient connects transport using config and returns a ready client.
func NewAdminClient(config common.ClientConfig, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*AdminClient, error) {
	if err := transport.Connect(config); err != nil {
		return nil, err
	}
	return &AdminClient{config: config, transport: transport, serializer: serializer}, nil
}

// Close releases the underlying transport connection.
func (c *AdminClient) Close() error {
	return c.transport.Close()
}

func (c *AdminClient) call(req *common.Message, out any) error {
	reqBytes, err := c.serializer.Serialize(*req)
	if err != nil {
		return fmt.Errorf("admin client: encode request: %w", err)
	}

	respBytes, err := c.transport.Send(targetID, reqBytes)
	if err != nil {
		return fmt.Errorf("admin client: %w", err)
	}

	var resp common.Message
	if err := c.serializer.Deserialize(respBytes, &resp); err != nil {
		return fmt.Errorf("admin client: decode response: %w", err)
	}

	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return &AdminError{Code: resp.ErrCode, Message: resp.Err}
	}
	if out != nil {
		return resp.DecodeValue(out)
	}
	return nil
}

// AddDB issues add-db.
func (c *AdminClient) AddDB(name, segment, upstreamAddr, role string, overwrite bool) error {
	req, err := common.NewRequest(common.MsgTAddDB, name, common.AddDBPayload{
		Segment: segment, UpstreamAddr: upstreamAddr, Role: role, Overwrite: overwrite,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// CloseDB issues close-db.
func (c *AdminClient) CloseDB(name string) error {
	req, err := common.NewRequest(common.MsgTCloseDB, name, nil)
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// ClearDB issues clear-db.
func (c *AdminClient) ClearDB(name string, reopen bool) error {
	req, err := common.NewRequest(common.MsgTClearDB, name, common.ClearDBPayload{Reopen: reopen})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// ChangeRoleAndUpstream issues change-role-and-upstream.
func (c *AdminClient) ChangeRoleAndUpstream(name, role, upstreamAddr string) error {
	req, err := common.NewRequest(common.MsgTChangeRoleAndUpstream, name, common.ChangeRoleAndUpstreamPayload{
		Role: role, UpstreamAddr: upstreamAddr,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// BackupDB issues backup-db.
func (c *AdminClient) BackupDB(name string) error {
	req, err := common.NewRequest(common.MsgTBackupDB, name, nil)
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// RestoreDB issues restore-db.
func (c *AdminClient) RestoreDB(name, segment, upstreamAddr string) error {
	req, err := common.NewRequest(common.MsgTRestoreDB, name, common.RestoreDBPayload{
		Segment: segment, UpstreamAddr: upstreamAddr,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// BackupDBToObjectStore issues backup-db-to-object-store.
func (c *AdminClient) BackupDBToObjectStore(name, bucket string, rateLimitMBps float64) error {
	req, err := common.NewRequest(common.MsgTBackupDBToObjectStore, name, common.BackupDBToObjectStorePayload{
		Bucket: bucket, RateLimitMBps: rateLimitMBps,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// RestoreDBFromObjectStore issues restore-db-from-object-store.
func (c *AdminClient) RestoreDBFromObjectStore(name, segment, bucket string, rateLimitMBps float64, upstreamAddr string) error {
	req, err := common.NewRequest(common.MsgTRestoreDBFromObjectStore, name, common.RestoreDBFromObjectStorePayload{
		Segment: segment, Bucket: bucket, RateLimitMBps: rateLimitMBps, UpstreamAddr: upstreamAddr,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// AddObjectStoreFilesToDB issues add-object-store-files-to-db.
func (c *AdminClient) AddObjectStoreFilesToDB(name, segment, bucket, path string, rateLimitMBps float64, compactAfter bool) error {
	req, err := common.NewRequest(common.MsgTAddObjectStoreFilesToDB, name, common.AddObjectStoreFilesPayload{
		Segment: segment, Bucket: bucket, Path: path, RateLimitMBps: rateLimitMBps, CompactAfter: compactAfter,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// StartMessageIngestion issues start-message-ingestion.
func (c *AdminClient) StartMessageIngestion(name, topic, brokerSetRef string, desiredReplayTimestampMs int64, decodePayload bool) error {
	req, err := common.NewRequest(common.MsgTStartMessageIngestion, name, common.StartMessageIngestionPayload{
		Topic: topic, BrokerSetRef: brokerSetRef, DesiredReplayTimestampMs: desiredReplayTimestampMs, DecodePayload: decodePayload,
	})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// StopMessageIngestion issues stop-message-ingestion.
func (c *AdminClient) StopMessageIngestion(name string) error {
	req, err := common.NewRequest(common.MsgTStopMessageIngestion, name, nil)
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// GetSequenceNumber issues get-sequence-number.
func (c *AdminClient) GetSequenceNumber(name string) (uint64, error) {
	req, err := common.NewRequest(common.MsgTGetSequenceNumber, name, nil)
	if err != nil {
		return 0, err
	}
	var res common.GetSequenceNumberResult
	if err := c.call(req, &res); err != nil {
		return 0, err
	}
	return res.SequenceNumber, nil
}

// CheckDB issues check-db.
func (c *AdminClient) CheckDB(name string) (common.CheckDBResult, error) {
	req, err := common.NewRequest(common.MsgTCheckDB, name, nil)
	if err != nil {
		return common.CheckDBResult{}, err
	}
	var res common.CheckDBResult
	if err := c.call(req, &res); err != nil {
		return common.CheckDBResult{}, err
	}
	return res, nil
}

// SetDBOptions issues set-db-options.
func (c *AdminClient) SetDBOptions(name string, options map[string]string) error {
	req, err := common.NewRequest(common.MsgTSetDBOptions, name, common.SetDBOptionsPayload{Options: options})
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// CompactDB issues compact-db.
func (c *AdminClient) CompactDB(name string) error {
	req, err := common.NewRequest(common.MsgTCompactDB, name, nil)
	if err != nil {
		return err
	}
	return c.call(req, nil)
}

// Ping issues ping.
func (c *AdminClient) Ping() (string, error) {
	req, err := common.NewRequest(common.MsgTPing, "", nil)
	if err != nil {
		return "", err
	}
	var res common.PingResult
	if err := c.call(req, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

// DumpStats issues dump-stats.
func (c *AdminClient) DumpStats() (string, error) {
	req, err := common.NewRequest(common.MsgTDumpStats, "", nil)
	if err != nil {
		return "", err
	}
	var res common.DumpStatsResult
	if err := c.call(req, &res); err != nil {
		return "", err
	}
	return res.Text, nil
}
