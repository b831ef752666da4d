package voip

import (
	"context"
	"net"
	"sync"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/arzzra/voip_client/pkg/actor"
	"github.com/arzzra/voip_client/pkg/codec"
	"github.com/arzzra/voip_client/pkg/engine"
	"github.com/arzzra/voip_client/pkg/rtp"
)

// Client контроллер аудио сессии
type Client struct {
	config  Config
	log     logrus.FieldLogger
	worker  *actor.Actor
	sink    completionSink
	metrics *Metrics

	// Неизменны после New
	catalog *codec.Catalog

	closeOnce sync.Once
	closeErr  error

	// Состояние рабочего потока
	engine          engine.Engine
	outbound        outboundQueue
	state           *fsm.FSM
	channel         engine.ChannelID
	hasChannel      bool
	rtpSocket       rtp.Socket
	rtcpSocket      rtp.Socket
	addrs           addresses
	enabledEncoder  string
	enabledDecoders []string
	sending         bool
	playing         bool
	sessionID       string
	closed          bool
}

// New создает клиент и синхронно инициализирует движок в рабочем потоке
func New(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, newError(ErrorCodeInvalidConfig, "неверная конфигурация", err)
	}
	config.applyDefaults()

	c := &Client{
		config:  config,
		log:     config.Logger.WithField("component", "voip"),
		worker:  actor.New("voip", config.Logger),
		metrics: config.Metrics,
	}
	c.state = newSessionFSM(c)
	c.worker.Start()

	ctx, cancel := context.WithTimeout(context.Background(), config.InitTimeout)
	defer cancel()

	result := make(chan error, 1)
	if err := c.worker.Call(ctx, func() { result <- c.initEngine() }); err != nil {
		// Инициализация продолжится в рабочем потоке, движок закроется после нее
		go func() {
			c.worker.Post(c.shutdown)
			c.worker.Stop()
		}()
		return nil, newError(ErrorCodeInitTimeout, "движок не инициализирован вовремя", err)
	}
	if err := <-result; err != nil {
		c.worker.Stop()
		return nil, newError(ErrorCodeEngineInit, "ошибка создания движка", err)
	}

	c.log.WithField("codecs", c.catalog.Names()).Info("клиент запущен")
	return c, nil
}

// initEngine создает движок и каталог кодеков (рабочий поток)
func (c *Client) initEngine() error {
	eng, err := c.config.EngineFactory()
	if err != nil {
		return err
	}
	c.engine = eng
	c.catalog = codec.NewCatalog(eng.SupportedCodecs())
	return nil
}

// Close останавливает сессию, дожидается выполнения всех задач в очереди и
// закрывает движок. Нельзя вызывать из Callback.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.worker.Post(c.shutdown)
		c.worker.Stop()
		c.log.Info("клиент остановлен")
	})
	return c.closeErr
}

// shutdown освобождает сессию и движок (рабочий поток)
func (c *Client) shutdown() {
	if c.closed {
		return
	}
	c.closed = true
	c.sink.current.Store(nil)

	if c.hasChannel {
		c.teardown()
	}
	if c.engine != nil {
		c.closeErr = c.engine.Close()
	}
}

// Subscribe подписывает cb на результаты операций, заменяя предыдущего
// подписчика. Возвращенная функция отменяет подписку.
func (c *Client) Subscribe(cb Callback) func() {
	return c.sink.subscribe(cb)
}

// SupportedCodecs возвращает кодеки каталога
func (c *Client) SupportedCodecs() []codec.Spec {
	return c.catalog.Specs()
}

// Catalog возвращает каталог кодеков
func (c *Client) Catalog() *codec.Catalog {
	return c.catalog
}

// LocalIPAddress возвращает локальный IP маршрута по умолчанию или пустую
// строку, если маршрута нет
func (c *Client) LocalIPAddress() string {
	return discoverLocalIP(discoveryTargets)
}

// SetLocalAddress задает локальные адреса: RTP на port, RTCP на port+1
func (c *Client) SetLocalAddress(ip string, port int) {
	c.post(func() { c.setLocalAddress(ip, port) })
}

// SetRemoteAddress задает удаленные адреса: RTP на port, RTCP на port+1
func (c *Client) SetRemoteAddress(ip string, port int) {
	c.post(func() { c.setRemoteAddress(ip, port) })
}

// SetEncoder выбирает кодек отправки активной сессии
func (c *Client) SetEncoder(name string) {
	c.post(func() { c.setEncoder(name) })
}

// SetDecoders задает набор кодеков приема активной сессии
func (c *Client) SetDecoders(names []string) {
	names = append([]string(nil), names...)
	c.post(func() { c.setDecoders(names) })
}

// StartSession захватывает канал и сокеты. Результат: OnStartSessionCompleted.
func (c *Client) StartSession() {
	c.post(c.startSession)
}

// StopSession освобождает сессию. Результат: OnStopSessionCompleted.
func (c *Client) StopSession() {
	c.post(c.stopSession)
}

// StartSend включает отправку. Результат: OnStartSendCompleted.
func (c *Client) StartSend() {
	c.post(func() { c.toggle(OperationStartSend, c.engine.StartSend, &c.sending, true) })
}

// StopSend выключает отправку. Результат: OnStopSendCompleted.
func (c *Client) StopSend() {
	c.post(func() { c.toggle(OperationStopSend, c.engine.StopSend, &c.sending, false) })
}

// StartPlayout включает воспроизведение. Результат: OnStartPlayoutCompleted.
func (c *Client) StartPlayout() {
	c.post(func() { c.toggle(OperationStartPlayout, c.engine.StartPlayout, &c.playing, true) })
}

// StopPlayout выключает воспроизведение. Результат: OnStopPlayoutCompleted.
func (c *Client) StopPlayout() {
	c.post(func() { c.toggle(OperationStopPlayout, c.engine.StopPlayout, &c.playing, false) })
}

// Snapshot копия состояния сессии
type Snapshot struct {
	State      string
	SessionID  string
	Channel    engine.ChannelID
	HasChannel bool
	LocalRTP   Endpoint
	LocalRTCP  Endpoint
	RemoteRTP  Endpoint
	RemoteRTCP Endpoint
	RTPBound   *net.UDPAddr // фактический адрес RTP сокета, nil без сессии
	RTCPBound  *net.UDPAddr
	Encoder    string
	Decoders   []string
	Sending    bool
	Playing    bool

	RTPStats  rtp.TransportStatistics // статистика RTP сокета, нулевая без сессии
	RTCPStats rtp.TransportStatistics
	Pending   int // задачи в очереди рабочего потока
}

// Inspect передает fn снимок состояния из рабочего потока.
// Возвращает false, если клиент закрыт.
func (c *Client) Inspect(fn func(Snapshot)) bool {
	return c.worker.Post(func() { fn(c.snapshot()) })
}

func (c *Client) snapshot() Snapshot {
	s := Snapshot{
		State:      c.state.Current(),
		SessionID:  c.sessionID,
		Channel:    c.channel,
		HasChannel: c.hasChannel,
		LocalRTP:   c.addrs.localRTP,
		LocalRTCP:  c.addrs.localRTCP,
		RemoteRTP:  c.addrs.remoteRTP,
		RemoteRTCP: c.addrs.remoteRTCP,
		Encoder:    c.enabledEncoder,
		Decoders:   append([]string(nil), c.enabledDecoders...),
		Sending:    c.sending,
		Playing:    c.playing,
		Pending:    c.worker.Pending(),
	}
	if c.rtpSocket != nil {
		s.RTPBound = c.rtpSocket.LocalAddr()
		s.RTPStats = c.rtpSocket.Statistics()
	}
	if c.rtcpSocket != nil {
		s.RTCPBound = c.rtcpSocket.LocalAddr()
		s.RTCPStats = c.rtcpSocket.Statistics()
	}
	return s
}

// post ставит задачу в очередь рабочего потока
func (c *Client) post(task actor.Task) {
	if !c.worker.Post(task) {
		c.log.WithError(newError(ErrorCodeClosed, "клиент закрыт", nil)).Debug("вызов после Close проигнорирован")
	}
}

// complete сообщает результат операции подписчику
func (c *Client) complete(op Operation, ok bool) {
	c.metrics.completed(op, ok)
	if !c.sink.deliver(op, ok) {
		c.log.WithField("operation", op.String()).Debug("нет подписчика, результат пропущен")
	}
}

// fatal сообщает о нарушении инварианта движка
func (c *Client) fatal(err *Error) {
	err.SessionID = c.sessionID
	c.config.FatalHandler(err)
}
