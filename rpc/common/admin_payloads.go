package common

// --------------------------------------------------------------------------
// Wire payloads for the admin command catalogue.
//
// Each payload is JSON-encoded into Message.Value. Commands that only need
// the database name use Message.Key instead of a payload struct; commands
// with further arguments carry them here.
// --------------------------------------------------------------------------

// AddDBPayload is the add-db request payload.
type AddDBPayload struct {
	Segment      string `json:"segment"`
	UpstreamAddr string `json:"upstreamAddr,omitempty"`
	Role         string `json:"role,omitempty"`
	Overwrite    bool   `json:"overwrite,omitempty"`
}

// ClearDBPayload is the clear-db request payload.
type ClearDBPayload struct {
	Reopen bool `json:"reopen,omitempty"`
}

// ChangeRoleAndUpstreamPayload is the change-role-and-upstream request payload.
type ChangeRoleAndUpstreamPayload struct {
	Role         string `json:"role"`
	UpstreamAddr string `json:"upstreamAddr,omitempty"`
}

// RestoreDBPayload is the restore-db request payload.
type RestoreDBPayload struct {
	Segment      string `json:"segment"`
	UpstreamAddr string `json:"upstreamAddr,omitempty"`
}

// BackupDBToObjectStorePayload is the backup-db-to-object-store request payload.
type BackupDBToObjectStorePayload struct {
	Bucket        string  `json:"bucket"`
	RateLimitMBps float64 `json:"rateLimitMBps,omitempty"`
}

// RestoreDBFromObjectStorePayload is the restore-db-from-object-store request payload.
type RestoreDBFromObjectStorePayload struct {
	Segment       string  `json:"segment"`
	Bucket        string  `json:"bucket"`
	RateLimitMBps float64 `json:"rateLimitMBps,omitempty"`
	UpstreamAddr  string  `json:"upstreamAddr,omitempty"`
}

// AddObjectStoreFilesPayload is the add-object-store-files-to-db request payload.
type AddObjectStoreFilesPayload struct {
	Segment       string  `json:"segment"`
	Bucket        string  `json:"bucket"`
	Path          string  `json:"path"`
	RateLimitMBps float64 `json:"rateLimitMBps,omitempty"`
	CompactAfter  bool    `json:"compactAfter,omitempty"`
}

// StartMessageIngestionPayload is the start-message-ingestion request payload.
type StartMessageIngestionPayload struct {
	Topic                    string `json:"topic"`
	BrokerSetRef             string `json:"brokerSetRef"`
	DesiredReplayTimestampMs int64  `json:"desiredReplayTimestampMs,omitempty"`
	DecodePayload            bool   `json:"decodePayload,omitempty"`
}

// GetSequenceNumberResult is the get-sequence-number response payload.
type GetSequenceNumberResult struct {
	SequenceNumber uint64 `json:"sequenceNumber"`
}

// CheckDBResult is the check-db response payload.
type CheckDBResult struct {
	SequenceNumber        uint64 `json:"sequenceNumber"`
	WALTTLSeconds         int64  `json:"walTtlSeconds"`
	IsPrimary             bool   `json:"isPrimary"`
	LastUpdateTimestampMs int64  `json:"lastUpdateTimestampMs"`
}

// SetDBOptionsPayload is the set-db-options request payload.
type SetDBOptionsPayload struct {
	Options map[string]string `json:"options"`
}

// PingResult is the ping response payload.
type PingResult struct {
	Message string `json:"message"`
}

// DumpStatsResult is the dump-stats response payload.
type DumpStatsResult struct {
	Text string `json:"text"`
}
