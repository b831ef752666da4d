package voip

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/arzzra/voip_client/pkg/engine"
)

const waitTimeout = 2 * time.Second

var loopbackIP = net.IPv4(127, 0, 0, 1)

type result struct {
	op Operation
	ok bool
}

// recorder собирает результаты операций в канал
type recorder struct {
	results chan result
}

func newRecorder() *recorder {
	return &recorder{results: make(chan result, 64)}
}

func (r *recorder) callback() CallbackFuncs {
	push := func(op Operation) func(bool) {
		return func(ok bool) { r.results <- result{op: op, ok: ok} }
	}
	return CallbackFuncs{
		StartSession: push(OperationStartSession),
		StopSession:  push(OperationStopSession),
		StartSend:    push(OperationStartSend),
		StopSend:     push(OperationStopSend),
		StartPlayout: push(OperationStartPlayout),
		StopPlayout:  push(OperationStopPlayout),
	}
}

// wait ожидает следующий результат и проверяет, что он относится к op
func (r *recorder) wait(t *testing.T, op Operation) bool {
	t.Helper()
	select {
	case res := <-r.results:
		require.Equal(t, op, res.op, "результат другой операции")
		return res.ok
	case <-time.After(waitTimeout):
		t.Fatalf("нет результата %s", op)
		return false
	}
}

// fatalRecorder собирает ошибки, переданные FatalHandler
type fatalRecorder struct {
	mutex  sync.Mutex
	errors []error
}

func (f *fatalRecorder) handle(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.errors = append(f.errors, err)
}

func (f *fatalRecorder) all() []error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]error(nil), f.errors...)
}

type testClient struct {
	*Client
	engine *fakeEngine
	rec    *recorder
	fatals *fatalRecorder
	hook   *test.Hook
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	return newTestClientWith(t, newFakeEngine(), nil)
}

func newTestClientWith(t *testing.T, eng *fakeEngine, metrics *Metrics) *testClient {
	t.Helper()
	c := newEngineClient(t, eng, metrics)
	c.engine = eng
	return c
}

// newEngineClient создает клиент с произвольным движком
func newEngineClient(t *testing.T, eng engine.Engine, metrics *Metrics) *testClient {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	fatals := &fatalRecorder{}
	client, err := New(Config{
		EngineFactory: func() (engine.Engine, error) { return eng, nil },
		Logger:        logger,
		Metrics:       metrics,
		FatalHandler:  fatals.handle,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	rec := newRecorder()
	client.Subscribe(rec.callback())
	return &testClient{Client: client, rec: rec, fatals: fatals, hook: hook}
}

// snapshot ожидает снимок состояния из рабочего потока. Поскольку задачи
// выполняются по порядку, снимок отражает все ранее поставленные вызовы.
func (c *testClient) snapshot(t *testing.T) Snapshot {
	t.Helper()
	ch := make(chan Snapshot, 1)
	require.True(t, c.Inspect(func(s Snapshot) { ch <- s }))
	select {
	case s := <-ch:
		return s
	case <-time.After(waitTimeout):
		t.Fatal("снимок состояния не получен")
		return Snapshot{}
	}
}

// startSession запускает сессию на свободной паре портов
func (c *testClient) startSession(t *testing.T) int {
	t.Helper()
	port := freePortPair(t)
	c.SetLocalAddress("127.0.0.1", port)
	c.StartSession()
	require.True(t, c.rec.wait(t, OperationStartSession))
	return port
}

// freePortPair находит свободную пару соседних портов на loopback
func freePortPair(t *testing.T) int {
	t.Helper()
	for i := 0; i < 50; i++ {
		first, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopbackIP})
		require.NoError(t, err)
		port := first.LocalAddr().(*net.UDPAddr).Port
		if port >= MaxRTPPort {
			first.Close()
			continue
		}
		second, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopbackIP, Port: port + 1})
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

// listenPeer открывает сокет удаленной стороны
func listenPeer(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopbackIP, Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readPeer читает одну датаграмму с таймаутом
func readPeer(t *testing.T, conn *net.UDPConn) ([]byte, *net.UDPAddr) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	buf := make([]byte, 1500)
	n, from, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n], from
}

// portFree проверяет, что порт можно занять
func portFree(port int) bool {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopbackIP, Port: port})
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// loggedErrorCode проверяет, что в логе есть запись с ошибкой кода code
func (c *testClient) loggedErrorCode(code ErrorCode) bool {
	for _, entry := range c.hook.AllEntries() {
		if err, ok := entry.Data[logrus.ErrorKey].(error); ok && HasErrorCode(err, code) {
			return true
		}
	}
	return false
}
