// Package wire frames the messages that cross a process boundary: the
// three asynchronous alias-protocol messages (fetch, reply_fetch,
// notify_value, §4.E), the synchronous request/reply pairs transport
// uses to reach a partition hosted in another process, and handoff
// batches (§6 "Persisted state"). Payloads are gob-encoded, the same
// choice a networked consensus node in this family makes for its own message type,
// and each gob blob is framed with a cbe length prefix so a stream
// socket can tell where one message ends and the next begins.
package wire

import (
	"bytes"
	"encoding/gob"

	"github.com/latticeflow/dflow/lattice"
	"github.com/latticeflow/dflow/store"
	"github.com/latticeflow/dflow/varid"
)

func init() {
	gob.Register(store.Bottom{})
	gob.Register(store.Concrete{})
	gob.Register(store.Alias{})
	gob.Register(store.Undefined{})
	gob.Register(lattice.GCounterValue{})
	// Common scalar payload types a Concrete.Payload may hold: gob
	// needs every concrete type that crosses an interface{} field
	// registered up front, not just the application-defined ones.
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(string(""))
	gob.Register(bool(false))
}

// Kind tags which field of an Envelope is populated.
type Kind uint8

const (
	KindFetch Kind = iota
	KindFetchReply
	KindNotify
	KindDeclare
	KindDeclareReply
	KindBind
	KindBindReply
	KindRead
	KindWaitNeeded
	KindValueReply
	KindIsDet
	KindIsDetReply
	KindNext
	KindNextReply
	KindThread
	KindThreadReply
	KindErrorReply
)

// Envelope is the single message type that crosses the wire. ReqID
// correlates a request kind with its reply; it is left zero for the
// three fire-and-forget alias messages, which have no reply.
type Envelope struct {
	Kind  Kind
	ReqID uint64

	Target, From, Alias, ID varid.ID
	Type                    lattice.Type
	HasType                 bool
	Threshold               *lattice.Threshold
	Value                   store.Value
	Next                    *varid.ID
	Snapshot                store.Snapshot
	Module, Function        string
	Args                    []store.Value
	Bound                   bool
	Err                     string
}

// Encode gob-encodes e.
func Encode(e Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode gob-decodes an Envelope previously produced by Encode.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e)
	return e, err
}
