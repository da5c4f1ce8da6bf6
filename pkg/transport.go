package udrone

import (
	"errors"
	"log/slog"
	"net"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

// multicastAddr is the protocol's single well-known destination for all
// sends; every receive arrives on the same socket, which is bound to an
// ephemeral local port.
var multicastAddr = &net.UDPAddr{IP: net.ParseIP("239.6.6.6"), Port: 21337}

// errDeadlineReached is returned by recvNext once the caller-supplied
// deadline has passed with no accepted datagram.
var errDeadlineReached = errors.New("udrone: recv deadline reached")

// transport owns the single UDP socket used by a Host: one socket that
// sends to multicastAddr and receives whatever arrives on its bound port.
//
// The spec's original split between a non-blocking recv_one and a separate
// poll(timeout) exists to work around a classic select()+recv() socket
// API; Go's net.UDPConn already folds "wait up to a deadline, then read"
// into a single SetReadDeadline + Read call, so recvNext below does the
// job of both without discarding data the way a fake "peek" would.
type transport struct {
	conn    *net.UDPConn
	pconn   *ipv4.PacketConn
	log     *slog.Logger
	hostFor string // this host's identity, used to filter recvNext
}

func newTransport(interfaceName string, identity string, log *slog.Logger) (*transport, error) {
	iface, err := net.InterfaceByName(interfaceName)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "lookup interface %q", interfaceName)
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "bind udp socket")
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastInterface(iface); err != nil {
		conn.Close()
		return nil, pkgerrors.Wrapf(err, "pin multicast egress to %q", interfaceName)
	}

	return &transport{
		conn:    conn,
		pconn:   pconn,
		log:     log,
		hostFor: identity,
	}, nil
}

func (t *transport) close() error {
	return t.conn.Close()
}

// send builds and transmits one envelope to the fixed multicast endpoint.
// No retransmission happens at this layer.
func (t *transport) send(from, to string, seq uint32, msgType string, data Data) error {
	msg := Message{From: from, To: to, Type: msgType, Seq: seq, Data: data}
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	t.log.Debug("send", "to", to, "type", msgType, "seq", seq)
	_, err = t.conn.WriteToUDP(payload, multicastAddr)
	return err
}

// recvNext waits for and returns the next datagram accepted by the filter
// (to == this host, seq match when seq != 0, type match when msgType != "")
// or errDeadlineReached once deadline passes with nothing accepted.
// Rejected and malformed datagrams are consumed and silently skipped; the
// call keeps reading until either an accepted message or the deadline.
func (t *transport) recvNext(deadline time.Time, seq uint32, msgType string) (Message, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return Message{}, err
	}

	buf := make([]byte, MaxDatagram)
	for {
		n, _, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Message{}, errDeadlineReached
			}
			return Message{}, err
		}

		msg, ok := decodeMessage(buf[:n])
		if !ok {
			continue
		}
		if msg.To != t.hostFor {
			continue
		}
		if seq != 0 && msg.Seq != seq {
			continue
		}
		if msgType != "" && msg.Type != msgType {
			continue
		}
		t.log.Debug("recv", "from", msg.From, "type", msg.Type, "seq", msg.Seq)
		return msg, nil
	}
}
