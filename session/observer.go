package session

import "github.com/relaymobile/sessionwire-go/contracts"

// Observer receives connection notifications. It is injected at Connection
// construction; there is no ambient or process-wide notification mechanism.
//
// Callbacks are issued synchronously from the connection's event loop in
// the order frames were received, never reordered or batched. Observers
// must not block; marshaling onto a particular execution context is the
// embedder's responsibility.
type Observer interface {
	// OnStateChanged reports every state transition.
	OnStateChanged(state ConnectionState)
	// OnMessage delivers a decoded inbound envelope. Envelopes with a tag
	// outside the closed vocabulary arrive with Type == TypeUnrecognized.
	OnMessage(env *contracts.Envelope)
	// OnRawData delivers inbound frames that intentionally bypass the
	// codec.
	OnRawData(data []byte)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are no-ops.
type ObserverFuncs struct {
	StateChanged func(state ConnectionState)
	Message      func(env *contracts.Envelope)
	RawData      func(data []byte)
}

func (o ObserverFuncs) OnStateChanged(state ConnectionState) {
	if o.StateChanged != nil {
		o.StateChanged(state)
	}
}

func (o ObserverFuncs) OnMessage(env *contracts.Envelope) {
	if o.Message != nil {
		o.Message(env)
	}
}

func (o ObserverFuncs) OnRawData(data []byte) {
	if o.RawData != nil {
		o.RawData(data)
	}
}
