// Package dbname parses and renders database names of the form
// <segment>_<shard>. It is split out from internal/admin so
// that lower-level packages (event-log ingestion, the bulk ingest pipeline)
// can parse shard indices without importing the dispatcher package.
package dbname

import (
	"fmt"
	"strconv"
	"strings"
)

// Name is a parsed database name.
type Name struct {
	Segment string
	Shard   uint64
}

// Parse parses s into its segment and shard-index parts. The shard is the
// integer after the last underscore; everything before it is the segment.
// Parsing must round-trip.
func Parse(s string) (Name, error) {
	idx := strings.LastIndexByte(s, '_')
	if idx <= 0 || idx == len(s)-1 {
		return Name{}, fmt.Errorf("invalid database name %q: want <segment>_<shard>", s)
	}
	segment := s[:idx]
	shardStr := s[idx+1:]
	shard, err := strconv.ParseUint(shardStr, 10, 64)
	if err != nil {
		return Name{}, fmt.Errorf("invalid database name %q: shard %q is not a non-negative integer: %w", s, shardStr, err)
	}
	return Name{Segment: segment, Shard: shard}, nil
}

// String renders the canonical <segment>_<shard> form.
func (n Name) String() string {
	return fmt.Sprintf("%s_%d", n.Segment, n.Shard)
}
