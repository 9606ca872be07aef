package transport

import "errors"

// ErrNotSupported is returned by a Conn's synchronous, non-alias
// operations (Bind, Read, IsDet, Next, WaitNeeded, Thread): a
// networked deployment is expected to route those calls to whichever
// process actually hosts the owning partition directly (the client
// hashes the VarId itself and dials that partition's address), rather
// than proxying them through an arbitrary peer connection. Only the
// alias protocol and Declare, which must reach across partitions as
// part of the core algorithm itself, cross a Conn.
var ErrNotSupported = errors.New("transport: operation not supported over a remote peer connection")
