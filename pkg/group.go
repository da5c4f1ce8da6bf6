package udrone

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// keepAliveInterval is the period of the background liveness ping a
// non-empty Group sends to its members.
const keepAliveInterval = 19 * time.Second

// passiveRecvCap bounds the even-iteration "just wait" pass of Request so
// one slow round can't consume the whole remaining timeout.
const passiveRecvCap = 10 * time.Second

// Group is a named cohort of drones owned by one Host. It owns its own
// sequence counter, membership set, and a background keep-alive timer; its
// reference to the Host is a lookup relation, never ownership.
type Group struct {
	id   string
	host *Host
	log  *slog.Logger

	seqMu sync.Mutex
	seq   uint32

	membersMu sync.Mutex
	members   map[string]struct{}

	timer  clockworkTimer
	stopCh chan struct{}
	stop   sync.Once
}

// clockworkTimer is the subset of clockwork.Timer the keep-alive loop
// needs; declared locally so group.go doesn't have to import clockwork
// just to name the return type of Host.clock.NewTimer.
type clockworkTimer interface {
	Chan() <-chan time.Time
	Reset(d time.Duration) bool
	Stop() bool
}

func newGroup(host *Host, id string) *Group {
	g := &Group{
		id:      id,
		host:    host,
		log:     host.log.With("group", id),
		members: map[string]struct{}{},
		seq:     host.genSeq(),
		stopCh:  make(chan struct{}),
	}
	g.timer = host.clock.NewTimer(keepAliveInterval)
	go g.keepAliveLoop()
	return g
}

func (g *Group) keepAliveLoop() {
	for {
		select {
		case <-g.timer.Chan():
			g.membersMu.Lock()
			n := len(g.members)
			g.membersMu.Unlock()
			if n > 0 {
				g.log.Debug("keep-alive ping")
				if _, err := g.host.Whois(g.id, 0, 0, ""); err != nil {
					g.log.Warn("keep-alive ping failed", "err", err)
				}
			}
			g.timer.Reset(keepAliveInterval)
		case <-g.stopCh:
			g.timer.Stop()
			return
		}
	}
}

// rearmTimer cancels and restarts the keep-alive countdown; called on
// every outbound group request so active traffic suppresses redundant
// pings.
func (g *Group) rearmTimer() {
	g.timer.Reset(keepAliveInterval)
}

func (g *Group) nextSeq() uint32 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	g.seq++
	return g.seq
}

func (g *Group) currentSeq() uint32 {
	g.seqMu.Lock()
	defer g.seqMu.Unlock()
	return g.seq
}

// Members returns a snapshot of the current member identities.
func (g *Group) Members() []string {
	g.membersMu.Lock()
	defer g.membersMu.Unlock()
	out := make([]string, 0, len(g.members))
	for m := range g.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Assign queries idle drones via whois, engages up to maxNodes of them,
// and retries the shortfall once. If fewer than minNodes ultimately join,
// any newly engaged members are rolled back with !reset and the call
// fails with NotFound. minNodes defaults to maxNodes (or 1 if maxNodes is
// 0).
func (g *Group) Assign(maxNodes, minNodes int, board string) ([]string, error) {
	if minNodes <= 0 {
		if maxNodes > 0 {
			minNodes = maxNodes
		} else {
			minNodes = 1
		}
	}

	idle, err := g.host.Whois(AllDefaultGroup, maxNodes, 0, board)
	if err != nil {
		return nil, err
	}
	candidates := takeUpTo(sortedKeys(idle), maxNodes)

	newMembers, err := g.Engage(candidates)
	if err != nil {
		return nil, err
	}

	if len(newMembers) < minNodes {
		shortfall := maxNodes - len(newMembers)
		more, err := g.host.Whois(AllDefaultGroup, shortfall, 0, board)
		if err != nil {
			return nil, err
		}
		moreCandidates := takeUpTo(sortedKeys(more), shortfall)
		moreMembers, err := g.Engage(moreCandidates)
		if err != nil {
			return nil, err
		}
		newMembers = append(newMembers, moreMembers...)
	}

	if len(newMembers) < minNodes {
		if len(newMembers) > 0 {
			if _, err := g.host.CallMulti(newMembers, 0, "!reset", nil, "status"); err != nil {
				g.log.Warn("rollback reset failed", "err", err)
			}
			g.membersMu.Lock()
			for _, m := range newMembers {
				delete(g.members, m)
			}
			g.membersMu.Unlock()
		}
		return nil, newNotFoundf("group %s: need %d idle drones, found %d", g.id, minNodes, len(newMembers))
	}

	g.log.Info("assigned members", "members", newMembers)
	return newMembers, nil
}

// Engage invites specific candidates to join the group by id, adding those
// that answer "status" with code 0 to the member set.
func (g *Group) Engage(candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	data := Data{"group": g.id, "seq": int(g.currentSeq())}
	answers, err := g.host.CallMulti(candidates, 0, "!assign", data, "status")
	if err != nil {
		return nil, err
	}

	var added []string
	for _, node := range candidates {
		msg, ok := answers[node]
		if !ok {
			continue
		}
		code, ok := msg.Data.Code()
		if ok && code == 0 {
			added = append(added, node)
		}
	}

	g.membersMu.Lock()
	for _, m := range added {
		g.members[m] = struct{}{}
	}
	g.membersMu.Unlock()

	return added, nil
}

// Reset disbands the group: if it has members, it issues !reset to all of
// them and replaces the member set with whoever failed to answer in time,
// reported as an Unreachable error. An already-empty group is a no-op.
// Either way the group's keep-alive worker is stopped; per the spec,
// reset is what destroys a Group.
func (g *Group) Reset(how string) error {
	defer g.stopKeepAlive()

	g.membersMu.Lock()
	if len(g.members) == 0 {
		g.membersMu.Unlock()
		return nil
	}
	expect := make(map[string]struct{}, len(g.members))
	for m := range g.members {
		expect[m] = struct{}{}
	}
	g.membersMu.Unlock()

	if _, err := g.host.Reset(g.id, how, expect); err != nil {
		return err
	}

	residual := make([]string, 0, len(expect))
	for m := range expect {
		residual = append(residual, m)
	}
	sort.Strings(residual)

	g.membersMu.Lock()
	g.members = make(map[string]struct{}, len(expect))
	for m := range expect {
		g.members[m] = struct{}{}
	}
	g.membersMu.Unlock()

	if len(residual) > 0 {
		g.log.Warn("reset left residual members", "residual", residual)
		return newUnreachable(residual)
	}
	g.log.Info("group reset")
	return nil
}

func (g *Group) stopKeepAlive() {
	g.stop.Do(func() { close(g.stopCh) })
}

// isNone reports whether an answer slot represents "no terminal reply
// yet" (either never answered, or answered with a non-terminal "accept").
func isNone(m Message) bool {
	return m.Type == ""
}

// Request issues msg_type to every current member and alternates between
// an active send-and-wait attempt and a passive just-wait attempt until
// every member has produced a terminal reply or timeout elapses. The
// passive rounds give drones that answered "accept" time to finish without
// a re-send on every round; a drone replying "accept" does not reset the
// overall timeout.
func (g *Group) Request(msgType string, data Data, timeout time.Duration) (map[string]Message, error) {
	g.membersMu.Lock()
	if len(g.members) == 0 {
		g.membersMu.Unlock()
		return nil, newNotFoundf("group %s is empty", g.id)
	}
	pending := make(map[string]struct{}, len(g.members))
	for m := range g.members {
		pending[m] = struct{}{}
	}
	g.membersMu.Unlock()

	var seq uint32
	if msgType != "" && msgType[0] != '!' {
		seq = g.nextSeq()
	} else {
		seq = g.host.genSeq()
	}

	answers := map[string]Message{}
	start := g.host.clock.Now()
	g.rearmTimer()

	for parity := 1; len(pending) > 0; parity++ {
		elapsed := g.host.clock.Now().Sub(start)
		if elapsed >= timeout {
			break
		}
		remaining := timeout - elapsed

		roundExpect := make(map[string]struct{}, len(pending))
		for p := range pending {
			roundExpect[p] = struct{}{}
		}

		if parity%2 == 1 {
			got, err := g.host.Call(g.id, seq, msgType, data, "", roundExpect)
			if err != nil {
				return answers, err
			}
			for k, v := range got {
				answers[k] = v
			}
		} else {
			window := remaining
			if window > passiveRecvCap {
				window = passiveRecvCap
			}
			g.host.mu.Lock()
			g.host.drainInto(answers, seq, "", window, roundExpect)
			g.host.mu.Unlock()
		}

		for drone := range roundExpect { // still expected => no reply this round
			answers[drone] = Message{}
		}
		for drone, ans := range answers {
			if !isNone(ans) && ans.Type == "accept" {
				answers[drone] = Message{} // in progress, keep waiting
			} else if _, isPending := pending[drone]; isPending && !isNone(ans) {
				delete(pending, drone) // terminal reply
			}
		}

		g.rearmTimer()
	}

	return answers, nil
}

// Call wraps Request and converts the raw answer map into a strict
// outcome: any missing or still-in-progress member becomes Unreachable,
// any non-member responder becomes Conflict, "unsupported" and non-zero
// "status" codes become RuntimeFailure.
func (g *Group) Call(msgType string, data Data, timeout time.Duration) (map[string]Message, error) {
	res, err := g.Request(msgType, data, timeout)
	if err != nil {
		return nil, err
	}

	g.membersMu.Lock()
	members := make(map[string]struct{}, len(g.members))
	for m := range g.members {
		members[m] = struct{}{}
	}
	g.membersMu.Unlock()

	var unreachable []string
	for drone, answer := range res {
		if isNone(answer) {
			unreachable = append(unreachable, drone)
		}
	}
	if len(unreachable) > 0 {
		sort.Strings(unreachable)
		return nil, newUnreachable(unreachable)
	}

	for drone, answer := range res {
		if _, ok := members[drone]; !ok {
			return nil, newConflict(drone)
		}
		switch answer.Type {
		case "unsupported":
			return nil, newRuntimeFailure(codeEOPNOTSUPP, "unknown command", drone)
		case "status":
			code, ok := answer.Data.Code()
			if !ok {
				return nil, newRuntimeFailure(codeEPROTO, "invalid status reply", drone)
			}
			if code > 0 {
				errstr, _ := answer.Data.Errstr()
				return nil, newRuntimeFailure(code, errstr, drone)
			}
		}
	}
	return res, nil
}

func takeUpTo(items []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}

func sortedKeys(m map[string]Message) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
