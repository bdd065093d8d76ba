package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses
// on the admin wire protocol. Key carries the target database name for
// commands that operate on one; Value carries a JSON-encoded request or
// response payload specific to MsgType; Ok/Err/ErrCode carry the outcome
// the way the transport layer's generic request/response pattern expects;
// Meta is reserved, unused by any admin command today.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Key carries the database name for db-scoped commands. Empty for
	// node-scoped commands (ping, dump-stats).
	Key string `json:"key,omitempty"`

	// Value carries the JSON-encoded request (on the way in) or response
	// (on the way out) payload. Empty when the command takes/returns no
	// payload beyond Key/Ok/Err.
	Value []byte `json:"value,omitempty"`

	// Ok reports whether a response represents success. Requests never set it.
	Ok bool `json:"ok,omitempty"`

	// Err holds the error message, if any. Empty on success.
	Err string `json:"err,omitempty"`

	// ErrCode holds the typed wire-level error code (e.g. "DB_NOT_FOUND",
	// "DB_EXIST") on an error response, mirroring admin.Error.ExternalCode().
	// Empty on success.
	ErrCode string `json:"err_code,omitempty"`

	// Meta is unused by any admin command today; reserved for future adapters.
	Meta []byte `json:"meta,omitempty"`
}

// DecodeValue JSON-decodes Value into dst. Returns an error wrapping the
// underlying json error if Value is malformed.
func (m *Message) DecodeValue(dst any) error {
	if len(m.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Value, dst); err != nil {
		return fmt.Errorf("rpc: decode message value: %w", err)
	}
	return nil
}

// NewRequest creates a request message of the given type, JSON-encoding
// payload into Value. A nil payload produces an empty Value.
func NewRequest(msgType MessageType, dbName string, payload any) (*Message, error) {
	msg := &Message{MsgType: msgType, Key: dbName}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("rpc: encode request payload: %w", err)
		}
		msg.Value = b
	}
	return msg, nil
}

// NewResponse creates a success response message, JSON-encoding payload
// into Value. A nil payload produces an empty Value.
func NewResponse(msgType MessageType, payload any) *Message {
	msg := &Message{MsgType: msgType, Ok: true}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return NewErrorResponse(fmt.Sprintf("rpc: encode response payload: %s", err))
		}
		msg.Value = b
	}
	return msg
}

// NewErrorResponse creates an error response message with no typed code.
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// NewErrorResponseWithCode creates an error response message carrying a
// typed wire-level error code alongside the message text.
func NewErrorResponseWithCode(err, code string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
		ErrCode: code,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType identifies which admin command a Message carries.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:                    "unknown",
	MsgTSuccess:                    "success",
	MsgTError:                      "error",
	MsgTAddDB:                      "add-db",
	MsgTCloseDB:                    "close-db",
	MsgTClearDB:                    "clear-db",
	MsgTChangeRoleAndUpstream:      "change-role-and-upstream",
	MsgTBackupDB:                   "backup-db",
	MsgTRestoreDB:                  "restore-db",
	MsgTBackupDBToObjectStore:      "backup-db-to-object-store",
	MsgTRestoreDBFromObjectStore:   "restore-db-from-object-store",
	MsgTAddObjectStoreFilesToDB:    "add-object-store-files-to-db",
	MsgTStartMessageIngestion:      "start-message-ingestion",
	MsgTStopMessageIngestion:       "stop-message-ingestion",
	MsgTGetSequenceNumber:          "get-sequence-number",
	MsgTCheckDB:                    "check-db",
	MsgTSetDBOptions:               "set-db-options",
	MsgTCompactDB:                  "compact-db",
	MsgTPing:                       "ping",
	MsgTDumpStats:                  "dump-stats",
}

var messageTypeByName = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageTypeNames))
	for t, s := range messageTypeNames {
		m[s] = t
	}
	return m
}()

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mt, ok := messageTypeByName[s]
	if !ok {
		return fmt.Errorf("unknown message type: %s", s)
	}
	*t = mt
	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Admin command catalogue - one constant per dispatcher method

	MsgTAddDB
	MsgTCloseDB
	MsgTClearDB
	MsgTChangeRoleAndUpstream
	MsgTBackupDB
	MsgTRestoreDB
	MsgTBackupDBToObjectStore
	MsgTRestoreDBFromObjectStore
	MsgTAddObjectStoreFilesToDB
	MsgTStartMessageIngestion
	MsgTStopMessageIngestion
	MsgTGetSequenceNumber
	MsgTCheckDB
	MsgTSetDBOptions
	MsgTCompactDB
	MsgTPing
	MsgTDumpStats
)
