package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Record is the per-database metadata tuple: last known
// object-store location and last applied event-log timestamp.
type Record struct {
	DB                   string
	Bucket               string
	Path                 string
	LastEventTimestampMs int64
}

// HasObjectStoreLocation reports whether Bucket/Path are both set -
// invariant "if bucket is set, path is set".
func (r Record) HasObjectStoreLocation() bool {
	return r.Bucket != "" && r.Path != ""
}

// encodeRecord produces a length-prefixed compact serialization. The layout
// is private to this node but stable across restarts of the
// same binary: each string field is uint32-length-prefixed, followed by the
// fixed-width timestamp.
func encodeRecord(r Record) []byte {
	var buf bytes.Buffer
	writeString := func(s string) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(s)))
		buf.WriteString(s)
	}
	writeString(r.DB)
	writeString(r.Bucket)
	writeString(r.Path)
	_ = binary.Write(&buf, binary.BigEndian, r.LastEventTimestampMs)
	return buf.Bytes()
}

func decodeRecord(data []byte) (Record, error) {
	buf := bytes.NewReader(data)
	readString := func() (string, error) {
		var n uint32
		if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := buf.Read(b); err != nil && n > 0 {
			return "", err
		}
		return string(b), nil
	}

	var r Record
	var err error
	if r.DB, err = readString(); err != nil {
		return Record{}, fmt.Errorf("metadata: decode db name: %w", err)
	}
	if r.Bucket, err = readString(); err != nil {
		return Record{}, fmt.Errorf("metadata: decode bucket: %w", err)
	}
	if r.Path, err = readString(); err != nil {
		return Record{}, fmt.Errorf("metadata: decode path: %w", err)
	}
	if err := binary.Read(buf, binary.BigEndian, &r.LastEventTimestampMs); err != nil {
		return Record{}, fmt.Errorf("metadata: decode timestamp: %w", err)
	}
	return r, nil
}
