package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/klauspost/compress/s2"

	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

// HandoffEntry is one cell snapshot in a handoff batch (§6 "Persisted
// state"): enough to reconstruct the cell via store.Store.Restore.
type HandoffEntry struct {
	ID       varid.ID
	Snapshot store.Snapshot
}

// EncodeHandoffBatch gob-encodes entries and block-compresses the
// result with s2, since a handoff batch transferring an entire
// partition's state at once benefits from compression in a way a
// single small alias message would not.
func EncodeHandoffBatch(entries []HandoffEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, err
	}
	return s2.Encode(nil, buf.Bytes()), nil
}

// DecodeHandoffBatch reverses EncodeHandoffBatch.
func DecodeHandoffBatch(b []byte) ([]HandoffEntry, error) {
	raw, err := s2.Decode(nil, b)
	if err != nil {
		return nil, err
	}
	var entries []HandoffEntry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
