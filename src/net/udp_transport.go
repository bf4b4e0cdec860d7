package net

import (
	"errors"
	"math"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// bufSize is the max datagram size we are willing to read.
	bufSize = math.MaxUint16
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// UDPTransport carries Drift commands over a single UDP socket. Each datagram
// holds one envelope: the command name followed by the payload bytes.
// Datagrams that fail to decode are logged and dropped so that a single
// corrupted or adversarial sender cannot affect the dispatch loop.
type UDPTransport struct {
	logger *logrus.Entry

	conn          *net.UDPConn
	advertiseAddr string

	consumeCh chan Packet

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewUDPTransport binds a UDP socket on bindAddr. advertiseAddr is the
// address other peers should use to reach us; it defaults to the bound
// address.
func NewUDPTransport(bindAddr string, advertiseAddr string, logger *logrus.Entry) (*UDPTransport, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	addr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	trans := &UDPTransport{
		logger:        logger,
		conn:          conn,
		advertiseAddr: advertiseAddr,
		consumeCh:     make(chan Packet, 128),
		shutdownCh:    make(chan struct{}),
	}

	return trans, nil
}

// Consumer implements the Transport interface.
func (u *UDPTransport) Consumer() <-chan Packet {
	return u.consumeCh
}

// LocalAddr implements the Transport interface.
func (u *UDPTransport) LocalAddr() string {
	return u.conn.LocalAddr().String()
}

// AdvertiseAddr implements the Transport interface.
func (u *UDPTransport) AdvertiseAddr() string {
	if u.advertiseAddr != "" {
		return u.advertiseAddr
	}
	return u.LocalAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (u *UDPTransport) IsShutdown() bool {
	select {
	case <-u.shutdownCh:
		return true
	default:
		return false
	}
}

// Listen starts the read loop.
func (u *UDPTransport) Listen() {
	go u.listen()
}

func (u *UDPTransport) listen() {
	buf := make([]byte, bufSize)

	for {
		n, remote, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if u.IsShutdown() {
				return
			}
			u.logger.WithError(err).Error("Reading datagram")
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		command, payload, err := decodeEnvelope(data)
		if err != nil {
			u.logger.WithField("from", remote.String()).WithError(err).Debug("Dropping undecodable datagram")
			continue
		}

		pkt := Packet{
			From:    remote.String(),
			Command: command,
			Payload: payload,
		}

		select {
		case u.consumeCh <- pkt:
		case <-u.shutdownCh:
			return
		}
	}
}

// Send implements the Transport interface.
func (u *UDPTransport) Send(target string, command string, payload []byte) error {
	if u.IsShutdown() {
		return ErrTransportShutdown
	}

	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return err
	}

	data, err := encodeEnvelope(command, payload)
	if err != nil {
		return err
	}

	_, err = u.conn.WriteToUDP(data, addr)

	return err
}

// Close is used to stop the transport.
func (u *UDPTransport) Close() error {
	u.shutdownLock.Lock()
	defer u.shutdownLock.Unlock()

	if !u.shutdown {
		close(u.shutdownCh)
		u.conn.Close()

		u.shutdown = true
	}
	return nil
}
