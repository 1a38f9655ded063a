package telemetry

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wiicon_remote/internal/orientation"
	"github.com/relabs-tech/wiicon_remote/internal/timeutil"
)

func TestBroadcast(t *testing.T) {
	tests := []struct {
		ip, want string
		mask     net.IPMask
	}{
		{"192.168.1.37", "192.168.1.255", net.CIDRMask(24, 32)},
		{"10.1.2.3", "10.1.255.255", net.CIDRMask(16, 32)},
		{"172.16.5.9", "172.16.5.11", net.CIDRMask(30, 32)},
		{"192.168.1.37", "192.168.1.255", net.IPv4Mask(255, 255, 255, 0)},
	}
	for _, tt := range tests {
		got := Broadcast(net.ParseIP(tt.ip), tt.mask)
		assert.Equal(t, tt.want, got.String())
	}

	assert.Nil(t, Broadcast(net.ParseIP("::1"), net.CIDRMask(64, 128)))
	assert.Nil(t, Broadcast(net.ParseIP("10.0.0.1"), net.IPMask{255}))
}

type fakeConn struct {
	writes []*net.UDPAddr
	err    error
	closed bool
}

func (c *fakeConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.writes = append(c.writes, addr)
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeLink struct {
	ip   string
	mask net.IPMask
	err  error
}

func (l *fakeLink) IPv4() (net.IP, net.IPMask, error) {
	if l.err != nil {
		return nil, nil, l.err
	}
	return net.ParseIP(l.ip), l.mask, nil
}

func newGate(t *testing.T, target string, link *fakeLink) (*UDPGate, *fakeConn, *timeutil.MockClock) {
	t.Helper()
	conn := &fakeConn{}
	clk := timeutil.NewMockClock(time.Unix(1000, 0))
	g, err := NewUDPGate(conn, target, 9000, link, clk)
	require.NoError(t, err)
	return g, conn, clk
}

func TestUDPGateBroadcastDestination(t *testing.T) {
	g, conn, _ := newGate(t, "", &fakeLink{ip: "192.168.4.20", mask: net.CIDRMask(24, 32)})

	require.True(t, g.IsReady())
	g.Send([]byte{1, 2, 3})

	require.Len(t, conn.writes, 1)
	assert.Equal(t, "192.168.4.255:9000", conn.writes[0].String())
}

func TestUDPGateConfiguredTarget(t *testing.T) {
	g, conn, _ := newGate(t, "10.0.0.7", &fakeLink{ip: "192.168.4.20", mask: net.CIDRMask(24, 32)})

	require.True(t, g.IsReady())
	g.Send([]byte{1})
	assert.Equal(t, "10.0.0.7:9000", conn.writes[0].String())
}

func TestUDPGateNotReadyWhenLinkDown(t *testing.T) {
	link := &fakeLink{err: ErrNoIPv4}
	g, conn, clk := newGate(t, "10.0.0.7", link)

	assert.False(t, g.IsReady())
	g.Send([]byte{1})
	assert.Empty(t, conn.writes)

	link.err = nil
	link.ip, link.mask = "10.0.0.2", net.CIDRMask(8, 32)
	clk.Advance(2 * time.Second)
	assert.True(t, g.IsReady())
}

func TestUDPGateSendErrorsAreCounted(t *testing.T) {
	g, conn, _ := newGate(t, "", &fakeLink{ip: "192.168.4.20", mask: net.CIDRMask(24, 32)})
	require.True(t, g.IsReady())

	conn.err = errors.New("network unreachable")
	for i := 0; i < 5; i++ {
		g.Send([]byte{1})
	}
	conn.err = nil
	g.Send([]byte{1})

	sent, failed := g.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(5), failed)
}

func TestUDPGateClose(t *testing.T) {
	g, conn, _ := newGate(t, "", &fakeLink{ip: "192.168.4.20", mask: net.CIDRMask(24, 32)})
	require.True(t, g.IsReady())
	require.NoError(t, g.Close())
	assert.True(t, conn.closed)
	assert.False(t, g.IsReady())
	assert.NoError(t, g.Close())
}

func TestNewUDPGateValidates(t *testing.T) {
	_, err := NewUDPGate(&fakeConn{}, "not-an-ip", 9000, &fakeLink{}, nil)
	assert.Error(t, err)
	_, err = NewUDPGate(&fakeConn{}, "", 0, &fakeLink{}, nil)
	assert.Error(t, err)
}

func TestRecordingGate(t *testing.T) {
	g := NewRecordingGate(false)
	assert.False(t, g.IsReady())
	g.SetReady(true)
	buf := []byte{9, 9}
	g.Send(buf)
	buf[0] = 0
	assert.Equal(t, [][]byte{{9, 9}}, g.Packets())
}

func TestDebugWriterFormat(t *testing.T) {
	var buf bytes.Buffer
	d := NewDebugWriter(&buf)
	d.WritePose(orientation.Pose{Roll: 1.234, Pitch: -0.005, Yaw: 179.999})
	d.WritePose(orientation.Pose{})
	assert.Equal(t, "1.23,-0.01,180.00\n0.00,0.00,0.00\n", buf.String())
	assert.NoError(t, d.Close())
}
