package net

// Packet is one inbound datagram: where it came from, the command it carries,
// and the opaque payload bytes. Payload decoding is the dispatch layer's
// problem, not the transport's.
type Packet struct {
	From    string
	Command string
	Payload []byte
}

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen starts the transport listening.
	Listen()

	// Consumer returns a channel that can be used to consume inbound
	// packets.
	Consumer() <-chan Packet

	// LocalAddr is used to return our local address.
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other
	// peers can reach us.
	AdvertiseAddr() string

	// Send transmits one command to the target address. Like UDP, a nil
	// error does not imply delivery.
	Send(target string, command string, payload []byte) error

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}
