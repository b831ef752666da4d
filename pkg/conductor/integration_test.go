package conductor

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voip_client/pkg/engine"
	"github.com/arzzra/voip_client/pkg/voip"
)

// channelView передает результаты операций в канал
type channelView struct {
	completions chan completion
}

func (v *channelView) SetSupportedCodecs([]string) {}
func (v *channelView) SetLocalIPAddress(string)    {}
func (v *channelView) ShowCompletion(op voip.Operation, ok bool) {
	v.completions <- completion{op: op, ok: ok}
}

func (v *channelView) wait(t *testing.T, op voip.Operation) bool {
	t.Helper()
	select {
	case c := <-v.completions:
		require.Equal(t, op, c.op)
		return c.ok
	case <-time.After(2 * time.Second):
		t.Fatalf("нет результата %s", op)
		return false
	}
}

type peer struct {
	conductor *Conductor
	view      *channelView
	sink      *engine.NullSink
	client    *voip.Client
}

func newPeer(t *testing.T) *peer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	sink := &engine.NullSink{}

	client, err := voip.New(voip.Config{
		Logger: logger,
		EngineFactory: func() (engine.Engine, error) {
			return engine.NewSoftEngine(engine.SoftConfig{
				Sink:           sink,
				Logger:         logger,
				PacketInterval: 10 * time.Millisecond,
			}), nil
		},
		FatalHandler: func(err error) { t.Errorf("нарушение инварианта: %v", err) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	view := &channelView{completions: make(chan completion, 16)}
	c := New(client, view, logger)
	c.Start()
	t.Cleanup(c.Stop)
	return &peer{conductor: c, view: view, sink: sink, client: client}
}

func freePortPair(t *testing.T) int {
	t.Helper()
	ip := net.IPv4(127, 0, 0, 1)
	for i := 0; i < 50; i++ {
		first, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip})
		require.NoError(t, err)
		port := first.LocalAddr().(*net.UDPAddr).Port
		second, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: port + 1})
		first.Close()
		if err != nil {
			continue
		}
		second.Close()
		return port
	}
	t.Fatal("не найдена свободная пара портов")
	return 0
}

// TestTwoPeersExchangeAudio два клиента с программным движком
// обмениваются звуком через loopback
func TestTwoPeersExchangeAudio(t *testing.T) {
	alice, bob := newPeer(t), newPeer(t)
	alicePort, bobPort := freePortPair(t), freePortPair(t)
	for bobPort == alicePort+1 || bobPort+1 == alicePort || bobPort == alicePort {
		bobPort = freePortPair(t)
	}

	alice.conductor.OnSessionEvent(true, "127.0.0.1", alicePort, "127.0.0.1", bobPort, "PCMA", []string{"PCMA"})
	bob.conductor.OnSessionEvent(true, "127.0.0.1", bobPort, "127.0.0.1", alicePort, "PCMA", []string{"PCMA", "PCMU"})
	require.True(t, alice.view.wait(t, voip.OperationStartSession))
	require.True(t, bob.view.wait(t, voip.OperationStartSession))

	bob.conductor.OnPlayoutAudio(true)
	require.True(t, bob.view.wait(t, voip.OperationStartPlayout))
	alice.conductor.OnSendAudio(true)
	require.True(t, alice.view.wait(t, voip.OperationStartSend))

	assert.Eventually(t, func() bool {
		return bob.sink.Samples() >= 800
	}, 3*time.Second, 10*time.Millisecond, "bob получает звук alice")
	assert.Zero(t, alice.sink.Samples(), "alice не включала воспроизведение")

	alice.conductor.OnSessionEvent(false, "", 0, "", 0, "", nil)
	bob.conductor.OnSessionEvent(false, "", 0, "", 0, "", nil)
	assert.True(t, alice.view.wait(t, voip.OperationStopSession))
	assert.True(t, bob.view.wait(t, voip.OperationStopSession))
}
