// Package mlme defines the boundary between the connection state
// machine and the MAC layer management entity that executes its
// requests. Requests flow down through a [Transport]; confirmations
// and indications flow back up as [Event] values delivered by the
// owner of the interface.
//
// There is no guaranteed 1:1 ordering between requests and events
// other than causal ordering per peer.
package mlme

// Request is implemented by every message the state machine can send
// down to the MLME.
type Request interface {
	mlmeRequest()
}

// Event is implemented by every confirmation or indication the MLME
// can deliver up to the state machine.
type Event interface {
	mlmeEvent()
}

// Transport sends requests to the MLME. Implementations must not
// block: a request is handed off, not executed synchronously.
type Transport interface {
	// Send hands one request to the MLME.
	Send(req Request) error
}
