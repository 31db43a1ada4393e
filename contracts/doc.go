// Package contracts defines the wire contracts shared by every component of
// the session transport:
//   - MessageType: the closed vocabulary of message tags
//   - Envelope: the tagged {type, payload, timestamp, sessionId} wrapper
//     around every message crossing the transport boundary
//   - Value: a schema-free recursive JSON-shaped value used as the envelope
//     payload container
//
// Payload shapes vary per message type and are not independently versioned,
// so the type enum stays closed while payload contents remain a dynamic
// mapping of Values.
package contracts
