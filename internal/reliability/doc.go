// Package reliability provides the reconnection policy used by the session
// transport: a pure function from attempt count to retry delay plus a
// give-up condition.
package reliability
