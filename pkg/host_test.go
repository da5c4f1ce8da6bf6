package udrone

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// testWindows is a short resend strategy so tests that exhaust the
// retransmission budget don't make the suite slow; real wall time is used
// throughout host_test.go since fakeTransport delivers replies synchronously
// and only the unreachable-path tests need any time to actually elapse.
var testWindows = []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHost(t *testing.T, net *fakeNetwork, identity string) *Host {
	t.Helper()
	clock := clockwork.NewRealClock()
	ft := newFakeTransport(net, identity, clock)
	h, err := NewHost("lo",
		withTransport(ft),
		withIdentity(identity),
		WithClock(clock),
		WithLogger(silentLogger()),
		WithResendStrategy(testWindows),
	)
	require.NoError(t, err)
	return h
}

func TestHostCallHappyPath(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	drone := newFakeDrone(net, "Drone bbb", "rb5009")
	drone.setSilent(false)
	drone.setOnCommand(func(msg Message) (string, Data, bool) {
		return "status", Data{"code": 0}, true
	})

	// A command addressed straight at the drone's identity, bypassing group
	// membership, exercises Call's point-to-point path.
	answers, err := host.Call("Drone bbb", 0, "ping", nil, "", map[string]struct{}{"Drone bbb": {}})
	require.NoError(t, err)
	require.Contains(t, answers, "Drone bbb")
}

func TestHostWhoisCollectsIdleDrones(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	newFakeDrone(net, "Drone one", "rb5009")
	newFakeDrone(net, "Drone two", "rb5009")

	answers, err := host.Whois(AllDefaultGroup, 2, 0, "")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	require.Contains(t, answers, "Drone one")
	require.Contains(t, answers, "Drone two")
}

func TestHostWhoisFiltersByBoard(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	newFakeDrone(net, "Drone one", "rb5009")
	newFakeDrone(net, "Drone two", "rb4011")

	answers, err := host.Whois(AllDefaultGroup, -1, 0, "rb4011")
	require.NoError(t, err)
	require.Contains(t, answers, "Drone two")
	require.NotContains(t, answers, "Drone one")
}

func TestHostWhoisNeedZeroFiresOnce(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	newFakeDrone(net, "Drone one", "rb5009")

	// need == 0 is the keep-alive ping: it must not wait for replies.
	start := time.Now()
	answers, err := host.Whois(AllDefaultGroup, 0, 0, "")
	require.NoError(t, err)
	require.Empty(t, answers)
	require.Less(t, time.Since(start), 5*time.Millisecond)
}

func TestHostCallMultiPartialUnreachable(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	newFakeDrone(net, "Drone one", "rb5009")
	// "Drone two" is never registered: it will never answer.

	answers, err := host.CallMulti([]string{"Drone one", "Drone two"}, 0, "!reset", nil, "status")
	require.NoError(t, err)
	require.Contains(t, answers, "Drone one")
	require.NotContains(t, answers, "Drone two")
}

func TestHostGroupRejectsOverlongID(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")

	_, err := host.Group(strings.Repeat("g", maxGroupIDLen+1), true)
	require.Error(t, err)
}

func TestHostGroupAcceptsMaxLengthID(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")

	g, err := host.Group(strings.Repeat("g", maxGroupIDLen), true)
	require.NoError(t, err)
	require.Len(t, g.id, maxGroupIDLen)
	require.NoError(t, g.Reset(""))
}

func TestHostResetReportsUnreachable(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	// No drone registered for "Drone ghost": every window will time out.
	// Host.Reset is a plain Call, so the unanswered drone is reported by
	// staying in the expect set rather than by an error.
	expect := map[string]struct{}{"Drone ghost": {}}
	answers, err := host.Reset("Drone ghost", "", expect)
	require.NoError(t, err)
	require.Empty(t, answers)
	require.Equal(t, map[string]struct{}{"Drone ghost": {}}, expect)
}

func TestHostIdentityIsStable(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host ccc")
	require.Equal(t, "Host ccc", host.Identity())
}

func TestHostDisbandResetsAllGroups(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	drone := newFakeDrone(net, "Drone one", "")

	g, err := host.Group("g1", true)
	require.NoError(t, err)
	_, err = g.Engage([]string{"Drone one"})
	require.NoError(t, err)
	require.Contains(t, g.Members(), "Drone one")

	require.NoError(t, host.Disband(""))
	require.Empty(t, g.Members())
	_ = drone
}

func TestGenSeqIsWithinBudget(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	for i := 0; i < 100; i++ {
		seq := host.genSeq()
		require.Less(t, seq, uint32(2_000_000_000))
	}
}

func TestHostMultipleGroupsGetUniqueIDs(t *testing.T) {
	net := newFakeNetwork()
	host := newTestHost(t, net, "Host aaa")
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		g, err := host.Group(fmt.Sprintf("grp%d", i), false)
		require.NoError(t, err)
		require.False(t, seen[g.id], "duplicate group id %s", g.id)
		seen[g.id] = true
	}
}
