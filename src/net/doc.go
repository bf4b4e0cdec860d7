// Package net provides the datagram transports that carry Drift commands
// between peers.
//
// A Transport delivers inbound packets on a consumer channel and sends
// outbound packets addressed by command name. There is deliberately no
// ordering or delivery guarantee: the session, interpolation and narrative
// layers are all written to tolerate loss, duplication and reordering, so the
// transport stays as thin as a socket.
//
// Two implementations are provided: a UDP transport for real deployments and
// an in-memory transport for tests.
package net
