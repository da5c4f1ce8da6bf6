package udrone

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// fakeSubscriber receives a synchronous callback for every message published
// on a fakeNetwork, exactly like every listener on a real multicast group
// receives a copy of each datagram and decides locally whether to keep it.
type fakeSubscriber interface {
	deliver(msg Message)
}

// fakeNetwork simulates the 239.6.6.6 multicast segment in memory.
type fakeNetwork struct {
	mu   sync.Mutex
	subs []fakeSubscriber
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{}
}

func (n *fakeNetwork) subscribe(s fakeSubscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, s)
}

// publish hands msg to every current subscriber outside the network lock, so
// a subscriber reacting to delivery (a fakeDrone replying) can itself publish
// without deadlocking.
func (n *fakeNetwork) publish(msg Message) {
	n.mu.Lock()
	subs := append([]fakeSubscriber(nil), n.subs...)
	n.mu.Unlock()
	for _, s := range subs {
		s.deliver(msg)
	}
}

// fakeTransport implements transportIface over a fakeNetwork instead of a
// real UDP socket, driven by the same clockwork.Clock as the Host under
// test so recvNext's deadline tracks a FakeClock instead of wall time.
type fakeTransport struct {
	net      *fakeNetwork
	identity string
	clock    clockwork.Clock

	mu     sync.Mutex
	inbox  []Message
	notify chan struct{}
	closed bool
}

func newFakeTransport(net *fakeNetwork, identity string, clock clockwork.Clock) *fakeTransport {
	t := &fakeTransport{
		net:      net,
		identity: identity,
		clock:    clock,
		notify:   make(chan struct{}, 1),
	}
	net.subscribe(t)
	return t
}

func (t *fakeTransport) deliver(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || msg.To != t.identity {
		return
	}
	t.inbox = append(t.inbox, msg)
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *fakeTransport) send(from, to string, seq uint32, msgType string, data Data) error {
	t.net.publish(Message{From: from, To: to, Type: msgType, Seq: seq, Data: data})
	return nil
}

func (t *fakeTransport) popMatching(seq uint32, msgType string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, msg := range t.inbox {
		if seq != 0 && msg.Seq != seq {
			continue
		}
		if msgType != "" && msg.Type != msgType {
			continue
		}
		t.inbox = append(t.inbox[:i], t.inbox[i+1:]...)
		return msg, true
	}
	return Message{}, false
}

// recvNext waits for a matching message or deadline, exactly like the real
// transport, except "time passing" is whatever the shared clockwork.Clock
// says, so tests can advance a FakeClock to make deadlines elapse without
// any real sleeping.
func (t *fakeTransport) recvNext(deadline time.Time, seq uint32, msgType string) (Message, error) {
	for {
		if msg, ok := t.popMatching(seq, msgType); ok {
			return msg, nil
		}
		remaining := deadline.Sub(t.clock.Now())
		if remaining <= 0 {
			return Message{}, errDeadlineReached
		}
		select {
		case <-t.notify:
		case <-t.clock.After(remaining):
			return Message{}, errDeadlineReached
		}
	}
}

func (t *fakeTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// fakeDrone is a minimal scripted responder standing in for a real drone: it
// reacts to !whois/!assign/!reset and user commands synchronously, inside
// fakeNetwork.publish's delivery loop, so tests need no goroutines of their
// own to drive drone behaviour.
type fakeDrone struct {
	net      *fakeNetwork
	identity string
	board    string

	mu     sync.Mutex
	group  string
	silent bool
	onCmd  func(msg Message) (respType string, data Data, ok bool)
}

func newFakeDrone(net *fakeNetwork, identity, board string) *fakeDrone {
	d := &fakeDrone{net: net, identity: identity, board: board}
	net.subscribe(d)
	return d
}

func (d *fakeDrone) deliver(msg Message) {
	d.mu.Lock()
	silent := d.silent
	group := d.group
	board := d.board
	onCmd := d.onCmd
	d.mu.Unlock()

	if silent {
		return
	}

	switch msg.Type {
	case "!whois":
		if msg.To == AllDefaultGroup {
			if group != "" {
				return // already assigned, no longer idle
			}
		} else if msg.To != group {
			return
		}
		if b, ok := msg.Data.Board(); ok && b != board {
			return
		}
		d.net.publish(Message{From: d.identity, To: msg.From, Type: "status", Seq: msg.Seq, Data: Data{"code": 0}})
	case "!assign":
		if msg.To != d.identity {
			return
		}
		g, _ := msg.Data.Group()
		d.mu.Lock()
		d.group = g
		d.mu.Unlock()
		d.net.publish(Message{From: d.identity, To: msg.From, Type: "status", Seq: msg.Seq, Data: Data{"code": 0}})
	case "!reset":
		if msg.To != d.identity && msg.To != group {
			return
		}
		d.mu.Lock()
		d.group = ""
		d.mu.Unlock()
		d.net.publish(Message{From: d.identity, To: msg.From, Type: "status", Seq: msg.Seq, Data: Data{"code": 0}})
	default:
		if msg.To != d.identity && msg.To != group {
			return
		}
		if onCmd != nil {
			respType, data, ok := onCmd(msg)
			if ok {
				d.net.publish(Message{From: d.identity, To: msg.From, Type: respType, Seq: msg.Seq, Data: data})
			}
			return
		}
		d.net.publish(Message{From: d.identity, To: msg.From, Type: "status", Seq: msg.Seq, Data: Data{"code": 0}})
	}
}

func (d *fakeDrone) setSilent(silent bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent = silent
}

func (d *fakeDrone) setOnCommand(f func(msg Message) (respType string, data Data, ok bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCmd = f
}
