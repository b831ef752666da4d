package voip

import (
	"net"
	"testing"
	"time"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voip_client/pkg/engine"
)

// TestZeroLengthPackets пустые пакеты пересылаются как пустые датаграммы
func TestZeroLengthPackets(t *testing.T) {
	c := newTestClient(t)
	remote := freePortPair(t)
	peerRTP := listenPeer(t, remote)
	peerRTCP := listenPeer(t, remote+1)

	c.SetRemoteAddress("127.0.0.1", remote)
	c.startSession(t)

	transport := c.engine.lastTransport()
	require.NotNil(t, transport)
	assert.True(t, transport.SendRTP(nil, engine.PacketOptions{PacketID: -1}))
	assert.True(t, transport.SendRTCP([]byte{}))

	data, _ := readPeer(t, peerRTP)
	assert.Empty(t, data)
	data, _ = readPeer(t, peerRTCP)
	assert.Empty(t, data)
}

// TestSendCopiesPacket буфер движка можно переиспользовать сразу после вызова
func TestSendCopiesPacket(t *testing.T) {
	c := newTestClient(t)
	remote := freePortPair(t)
	peer := listenPeer(t, remote)

	c.SetRemoteAddress("127.0.0.1", remote)
	c.startSession(t)

	buf := []byte{0x80, 0x00, 0x00, 0x01}
	require.True(t, c.engine.lastTransport().SendRTP(buf, engine.PacketOptions{}))
	buf[3] = 0xFF

	data, _ := readPeer(t, peer)
	assert.Equal(t, []byte{0x80, 0x00, 0x00, 0x01}, data)
}

// TestLoopbackScenario 127.0.0.1:10000 <-> 127.0.0.1:20000
func TestLoopbackScenario(t *testing.T) {
	const local, remote = 10000, 20000
	for _, port := range []int{local, local + 1, remote, remote + 1} {
		if !portFree(port) {
			t.Skipf("порт %d занят", port)
		}
	}

	c := newTestClient(t)
	peerRTP := listenPeer(t, remote)
	peerRTCP := listenPeer(t, remote+1)

	c.SetLocalAddress("127.0.0.1", local)
	c.SetRemoteAddress("127.0.0.1", remote)
	c.StartSession()
	require.True(t, c.rec.wait(t, OperationStartSession))

	s := c.snapshot(t)
	assert.Equal(t, local, s.RTPBound.Port)
	assert.Equal(t, local+1, s.RTCPBound.Port)
	assert.Equal(t, remote+1, s.RemoteRTCP.Port)

	c.StartSend()
	assert.True(t, c.rec.wait(t, OperationStartSend))

	// исходящие пакеты движка уходят на удаленные адреса с локальных портов
	transport := c.engine.lastTransport()
	require.True(t, transport.SendRTP([]byte("rtp"), engine.PacketOptions{}))
	require.True(t, transport.SendRTCP([]byte("rtcp")))

	data, from := readPeer(t, peerRTP)
	assert.Equal(t, "rtp", string(data))
	assert.Equal(t, local, from.Port)
	data, from = readPeer(t, peerRTCP)
	assert.Equal(t, "rtcp", string(data))
	assert.Equal(t, local+1, from.Port)

	s = c.snapshot(t)
	assert.Equal(t, uint64(1), s.RTPStats.PacketsSent)
	assert.Equal(t, uint64(1), s.RTCPStats.PacketsSent)

	// входящие пакеты передаются движку
	_, err := peerRTP.WriteToUDP([]byte("in-rtp"), &net.UDPAddr{IP: loopbackIP, Port: local})
	require.NoError(t, err)
	_, err = peerRTCP.WriteToUDP([]byte("in-rtcp"), &net.UDPAddr{IP: loopbackIP, Port: local + 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.engine.receivedRTP()) == 1 && len(c.engine.receivedRTCP()) == 1
	}, waitTimeout, 10*time.Millisecond)
	assert.Equal(t, "in-rtp", string(c.engine.receivedRTP()[0]))
	assert.Equal(t, "in-rtcp", string(c.engine.receivedRTCP()[0]))

	c.StopSession()
	assert.True(t, c.rec.wait(t, OperationStopSession))
	assert.True(t, portFree(local))
	assert.True(t, portFree(local+1))
	assert.Zero(t, c.engine.channelCount())
}

func TestInboundWithoutChannel(t *testing.T) {
	c := newTestClient(t)

	c.worker.Post(func() { c.injectPacket(c.sessionID, kindRTP, []byte{1}) })
	c.snapshot(t)

	assert.Empty(t, c.engine.receivedRTP())
	assert.Empty(t, c.fatals.all())
}

func TestInboundEngineErrors(t *testing.T) {
	c := newTestClient(t)
	c.startSession(t)

	// отклонение пакета движком только логируется
	c.engine.set(func(e *fakeEngine) { e.failReceive = engine.ErrMalformedPacket })
	c.worker.Post(func() { c.injectPacket(c.sessionID, kindRTP, []byte{1}) })
	c.snapshot(t)
	assert.Empty(t, c.fatals.all())

	// неизвестный активный канал - нарушение инварианта
	c.engine.set(func(e *fakeEngine) { e.failReceive = engine.ErrUnknownChannel })
	c.worker.Post(func() { c.injectPacket(c.sessionID, kindRTCP, []byte{1}) })
	c.snapshot(t)

	fatals := c.fatals.all()
	require.Len(t, fatals, 1)
	assert.ErrorIs(t, fatals[0], engine.ErrUnknownChannel)
}

// TestStalePacketsDropped пакеты прошлой сессии не попадают в новую
func TestStalePacketsDropped(t *testing.T) {
	c := newTestClient(t)
	remote := freePortPair(t)
	peer := listenPeer(t, remote)
	c.SetRemoteAddress("127.0.0.1", remote)

	c.startSession(t)
	stale := c.engine.lastTransport()
	staleID := c.snapshot(t).SessionID

	c.StopSession()
	require.True(t, c.rec.wait(t, OperationStopSession))
	c.StartSession()
	require.True(t, c.rec.wait(t, OperationStartSession))
	current := c.engine.lastTransport()
	require.NotSame(t, stale, current)

	// исходящий пакет канала прошлой сессии отбрасывается
	require.True(t, stale.SendRTP([]byte("stale"), engine.PacketOptions{}))
	require.True(t, current.SendRTP([]byte("fresh"), engine.PacketOptions{}))
	data, _ := readPeer(t, peer)
	assert.Equal(t, "fresh", string(data))

	// входящий пакет, прочитанный сокетом прошлой сессии, не доходит до движка
	c.worker.Post(func() { c.injectPacket(staleID, kindRTP, []byte("stale")) })
	c.snapshot(t)
	assert.Empty(t, c.engine.receivedRTP())
	assert.Empty(t, c.fatals.all())
}

func TestSendWithoutRemote(t *testing.T) {
	c := newTestClient(t)
	c.startSession(t)

	assert.True(t, c.engine.lastTransport().SendRTP([]byte{1}, engine.PacketOptions{}))
	assert.Equal(t, stateActive, c.snapshot(t).State)
}

func TestLocalIPAddress(t *testing.T) {
	assert.Equal(t, "127.0.0.1", discoverLocalIP([]string{"127.0.0.1:53"}))
	assert.Equal(t, "127.0.0.1", discoverLocalIP([]string{"bad target", "127.0.0.1:53"}))
	assert.Empty(t, discoverLocalIP([]string{"bad target"}))
	assert.Empty(t, discoverLocalIP(nil))

	c := newTestClient(t)
	if ip := c.LocalIPAddress(); ip != "" {
		assert.NotNil(t, net.ParseIP(ip))
	}
}

func TestEndpointPair(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		port    int
		wantErr bool
	}{
		{name: "IPv4", ip: "192.168.1.10", port: 5004},
		{name: "IPv6", ip: "2001:db8::1", port: 5004},
		{name: "наибольший порт", ip: "10.0.0.1", port: MaxRTPPort},
		{name: "порт RTCP вне диапазона", ip: "10.0.0.1", port: 65535, wantErr: true},
		{name: "нулевой порт", ip: "10.0.0.1", port: 0, wantErr: true},
		{name: "имя вместо адреса", ip: "localhost", port: 5004, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rtpAddr, rtcpAddr, err := endpointPair(tt.ip, tt.port)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.port, rtpAddr.Port)
			assert.Equal(t, tt.port+1, rtcpAddr.Port)
			assert.True(t, rtpAddr.IP.Equal(rtcpAddr.IP))
			assert.Equal(t, rtpAddr.IP.String(), tt.ip)
		})
	}
}

// TestGoodbyeOnStopSession RTCP BYE канала уходит в сеть до закрытия сокетов
func TestGoodbyeOnStopSession(t *testing.T) {
	soft := engine.NewSoftEngine(engine.SoftConfig{
		Source:         engine.SilenceSource{},
		PacketInterval: 5 * time.Millisecond,
		RTCPInterval:   time.Hour,
	})
	c := newEngineClient(t, soft, nil)

	remote := freePortPair(t)
	peerRTP := listenPeer(t, remote)
	peerRTCP := listenPeer(t, remote+1)
	c.SetRemoteAddress("127.0.0.1", remote)
	c.startSession(t)

	c.SetEncoder("PCMU")
	c.StartSend()
	require.True(t, c.rec.wait(t, OperationStartSend))
	data, _ := readPeer(t, peerRTP)
	require.NotEmpty(t, data)

	c.StopSession()
	require.True(t, c.rec.wait(t, OperationStopSession))

	data, _ = readPeer(t, peerRTCP)
	packets, err := rtcp.Unmarshal(data)
	require.NoError(t, err)
	require.NotEmpty(t, packets)
	_, ok := packets[0].(*rtcp.Goodbye)
	assert.True(t, ok, "ожидался BYE, получен %T", packets[0])
}
