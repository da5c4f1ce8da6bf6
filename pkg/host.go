package udrone

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// AllDefaultGroup is the reserved group id addressing every idle
// (unassigned) drone.
const AllDefaultGroup = "!all-default"

// defaultResendStrategy is the ordered list of receive-window durations a
// reliable call works through; the sum is the overall retransmission
// budget. Each attempt (re)sends once, then waits up to the window.
var defaultResendStrategy = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	1 * time.Second,
}

const maxGroupIDLen = 16

// transportIface is the seam Host depends on, satisfied by *transport in
// production and by an in-memory fake in tests (see fake_transport_test.go), since a
// real UDP socket's deadlines cannot be driven by a fake clock.
type transportIface interface {
	send(from, to string, seq uint32, msgType string, data Data) error
	recvNext(deadline time.Time, seq uint32, msgType string) (Message, error)
	close() error
}

// Host owns the transport, a unique identity, the retransmission policy,
// and the set of live Groups created through it.
type Host struct {
	identity string
	hexID    string

	t     transportIface
	clock clockwork.Clock
	log   *slog.Logger

	resendStrategy []time.Duration

	mu sync.Mutex // serialises all send/recv-drain on the shared socket

	groupsMu sync.Mutex
	groups   []*Group
}

// Option configures a Host at construction.
type Option func(*hostConfig)

type hostConfig struct {
	clock          clockwork.Clock
	log            *slog.Logger
	resendStrategy []time.Duration
	transport      transportIface // test seam; unset means "build a real one"
	identity       string         // test seam; unset means "generate randomly"
}

// WithClock overrides the Host's time source (default: the real clock).
func WithClock(c clockwork.Clock) Option {
	return func(cfg *hostConfig) { cfg.clock = c }
}

// WithLogger overrides the Host's structured logger (default: a slog.Logger
// writing to stderr, tint-backed on a terminal and JSON otherwise).
func WithLogger(l *slog.Logger) Option {
	return func(cfg *hostConfig) { cfg.log = l }
}

// WithResendStrategy overrides the retransmission window sequence.
func WithResendStrategy(windows []time.Duration) Option {
	return func(cfg *hostConfig) { cfg.resendStrategy = windows }
}

func withTransport(t transportIface) Option {
	return func(cfg *hostConfig) { cfg.transport = t }
}

func withIdentity(id string) Option {
	return func(cfg *hostConfig) { cfg.identity = id }
}

// NewHost constructs a Host whose multicast egress is pinned to the named
// local interface, generating a fresh random identity for its lifetime.
func NewHost(interfaceName string, opts ...Option) (*Host, error) {
	cfg := &hostConfig{
		clock:          clockwork.NewRealClock(),
		resendStrategy: defaultResendStrategy,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		cfg.log = defaultLogger()
	}

	hexID := strings.TrimPrefix(cfg.identity, "Host ")
	identity := cfg.identity
	if identity == "" {
		h, err := randomHex(3)
		if err != nil {
			return nil, errors.Wrap(err, "generate host identity")
		}
		hexID = h
		identity = "Host " + hexID
	}

	var err error
	t := cfg.transport
	if t == nil {
		t, err = newTransport(interfaceName, identity, cfg.log)
		if err != nil {
			return nil, err
		}
	}

	h := &Host{
		identity:       identity,
		hexID:          hexID,
		t:              t,
		clock:          cfg.clock,
		log:            cfg.log.With("host", identity),
		resendStrategy: cfg.resendStrategy,
	}
	h.log.Info("host initialized", "interface", interfaceName)
	return h, nil
}

// Identity returns the host's stable "Host <hex>" address.
func (h *Host) Identity() string { return h.identity }

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// genSeq allocates a random 31-bit sequence number in [0, 2e9), the space
// used for control/whois calls that must not alias an outstanding
// user-command sequence on any Group.
func (h *Host) genSeq() uint32 {
	n, err := rand.Int(rand.Reader, big.NewInt(2_000_000_000))
	if err != nil {
		// crypto/rand failing is unrecoverable for a protocol that relies
		// on sequence numbers for correlation; a zero-width window here
		// would silently corrupt call correlation instead.
		panic(errors.Wrap(err, "generate sequence number"))
	}
	return uint32(n.Int64())
}

// Call sends to, then drains replies addressed to this host matching seq
// (and resp_type, if given), across the retransmission strategy's windows.
// If expect is non-nil, entries are removed as their owners answer and the
// call exits early once expect is empty.
func (h *Host) Call(to string, seq uint32, msgType string, data Data, respType string, expect map[string]struct{}) (map[string]Message, error) {
	if seq == 0 {
		seq = h.genSeq()
	}
	callID := uuid.NewString()
	log := h.log.With("call_id", callID, "to", to, "type", msgType, "seq", seq)

	h.mu.Lock()
	defer h.mu.Unlock()

	answers := map[string]Message{}
	for attempt, window := range h.resendStrategy {
		log.Debug("attempt", "n", attempt+1, "window", window)
		if err := h.t.send(h.identity, to, seq, msgType, data); err != nil {
			return answers, errors.Wrap(err, "send")
		}
		h.drainInto(answers, seq, respType, window, expect)
		if expect != nil && len(expect) == 0 {
			break
		}
	}
	return answers, nil
}

// CallMulti is like Call but addresses each node individually (one
// datagram per node per attempt) instead of addressing a group.
func (h *Host) CallMulti(nodes []string, seq uint32, msgType string, data Data, respType string) (map[string]Message, error) {
	if seq == 0 {
		seq = h.genSeq()
	}
	expect := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		expect[n] = struct{}{}
	}
	callID := uuid.NewString()
	log := h.log.With("call_id", callID, "type", msgType, "seq", seq, "nodes", nodes)

	h.mu.Lock()
	defer h.mu.Unlock()

	answers := map[string]Message{}
	for attempt, window := range h.resendStrategy {
		log.Debug("attempt", "n", attempt+1, "window", window)
		for _, node := range nodes {
			if err := h.t.send(h.identity, node, seq, msgType, data); err != nil {
				return answers, errors.Wrap(err, "send")
			}
		}
		h.drainInto(answers, seq, respType, window, expect)
		if len(expect) == 0 {
			break
		}
	}
	return answers, nil
}

// Whois dispatches a control !whois to group, optionally filtered by
// board. need == 0 fires a single send without waiting (keep-alive
// semantics); need > 0 stops as soon as that many replies arrived;
// otherwise the full retransmission budget is used.
func (h *Host) Whois(group string, need int, seq uint32, board string) (map[string]Message, error) {
	if seq == 0 {
		seq = h.genSeq()
	}
	var data Data
	if board != "" {
		data = Data{"board": board}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	answers := map[string]Message{}
	for _, window := range h.resendStrategy {
		if err := h.t.send(h.identity, group, seq, "!whois", data); err != nil {
			return answers, errors.Wrap(err, "send")
		}
		if need == 0 {
			break
		}
		deadline := h.clock.Now().Add(window)
		for need < 0 || len(answers) < need {
			msg, err := h.t.recvNext(deadline, seq, "status")
			if err != nil {
				break
			}
			answers[msg.From] = msg
		}
		if need > 0 && len(answers) >= need {
			break
		}
	}
	return answers, nil
}

// Reset dispatches a !reset to target, optionally carrying how ("system"
// requests a full reboot), treated as a Call whose resp_type is "status".
func (h *Host) Reset(target string, how string, expect map[string]struct{}) (map[string]Message, error) {
	var data Data
	if how != "" {
		data = Data{"how": how}
	}
	return h.Call(target, 0, "!reset", data, "status", expect)
}

// drainInto must be called with h.mu held. It pulls messages off the
// transport for up to window, writing accepted ones into answers
// (last-writer-wins on duplicate identities) and removing matched senders
// from expect when non-nil. It returns once the window elapses or expect
// becomes empty.
func (h *Host) drainInto(answers map[string]Message, seq uint32, respType string, window time.Duration, expect map[string]struct{}) {
	deadline := h.clock.Now().Add(window)
	for {
		if expect != nil && len(expect) == 0 {
			return
		}
		remaining := deadline.Sub(h.clock.Now())
		if remaining <= 0 {
			return
		}
		msg, err := h.t.recvNext(deadline, seq, respType)
		if err != nil {
			return
		}
		answers[msg.From] = msg
		if expect != nil {
			delete(expect, msg.From)
		}
	}
}

// Group is the factory for named cohorts. If absolute is false, the host's
// hex identity is appended to prefix to make the id globally unique; an
// absolute id is used unmodified. Ids longer than 16 characters are
// rejected.
func (h *Host) Group(prefix string, absolute bool) (*Group, error) {
	id := prefix
	if !absolute {
		id = prefix + h.hexID
	}
	if len(id) > maxGroupIDLen {
		return nil, errors.Errorf("group id %q exceeds %d characters", id, maxGroupIDLen)
	}

	g := newGroup(h, id)
	h.groupsMu.Lock()
	h.groups = append(h.groups, g)
	h.groupsMu.Unlock()

	h.log.Info("group created", "group", id)
	return g, nil
}

// Disband resets every group this host created and empties its group list.
func (h *Host) Disband(how string) error {
	h.groupsMu.Lock()
	groups := h.groups
	h.groups = nil
	h.groupsMu.Unlock()

	var firstErr error
	for _, g := range groups {
		if err := g.Reset(how); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close releases the host's socket. Call Disband first if groups must be
// torn down cleanly.
func (h *Host) Close() error {
	return h.t.close()
}
