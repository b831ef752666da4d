package rtp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// readErrorBackoff пауза после непредвиденной ошибки чтения
const readErrorBackoff = 10 * time.Millisecond

// UDPSocket UDP сокет, привязанный к локальному адресу, с циклом чтения.
// Входящие датаграммы передаются зарегистрированному обработчику из
// горутины чтения, буфер чтения переиспользуется между вызовами.
type UDPSocket struct {
	conn   *net.UDPConn
	config SocketConfig
	log    logrus.FieldLogger

	active   bool
	started  bool
	mutex    sync.RWMutex
	readDone chan struct{}

	counters  socketCounters
	createdAt time.Time
}

// Bind создает UDP сокет, привязанный к addr
func Bind(addr *net.UDPAddr, config SocketConfig, logger logrus.FieldLogger) (*UDPSocket, error) {
	if addr == nil {
		return nil, fmt.Errorf("локальный адрес обязателен")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация сокета: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, classifyNetworkError("UDP bind "+addr.String(), err)
	}

	log := logger.WithFields(logrus.Fields{
		"component":  "rtp",
		"local_addr": conn.LocalAddr().String(),
	})

	// Настройки QoS не критичны: в контейнерах они часто запрещены
	if err := setSockOptForVoice(conn, config); err != nil {
		log.WithError(err).Warn("не удалось применить голосовые настройки сокета")
	}

	return &UDPSocket{
		conn:      conn,
		config:    config,
		log:       log,
		active:    true,
		readDone:  make(chan struct{}),
		createdAt: time.Now(),
	}, nil
}

// Start регистрирует обработчик и запускает цикл чтения
func (s *UDPSocket) Start(handler PacketHandler) error {
	if handler == nil {
		return fmt.Errorf("обработчик не может быть nil")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.active {
		return fmt.Errorf("сокет закрыт")
	}
	if s.started {
		return fmt.Errorf("чтение уже запущено")
	}
	s.started = true

	go s.readLoop(handler)
	return nil
}

// SendTo отправляет датаграмму. Пустая датаграмма допустима.
func (s *UDPSocket) SendTo(packet []byte, addr *net.UDPAddr) error {
	if addr == nil {
		return fmt.Errorf("удаленный адрес не установлен")
	}

	s.mutex.RLock()
	active := s.active
	conn := s.conn
	s.mutex.RUnlock()

	if !active {
		return classifyNetworkError("UDP write", net.ErrClosed)
	}

	n, err := conn.WriteToUDP(packet, addr)
	if err != nil {
		s.counters.errorsSend.Add(1)
		return classifyNetworkError("UDP write", err)
	}

	s.counters.packetsSent.Add(1)
	s.counters.bytesSent.Add(uint64(n))
	s.counters.touch()
	return nil
}

// LocalAddr возвращает адрес привязки
func (s *UDPSocket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close закрывает сокет и ждет завершения цикла чтения.
// Повторный вызов возвращает nil.
func (s *UDPSocket) Close() error {
	s.mutex.Lock()
	if !s.active {
		s.mutex.Unlock()
		return nil
	}
	s.active = false
	started := s.started
	err := s.conn.Close()
	s.mutex.Unlock()

	if started {
		<-s.readDone
	}
	return err
}

// IsActive проверяет, открыт ли сокет
func (s *UDPSocket) IsActive() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.active
}

// Statistics возвращает снимок статистики сокета
func (s *UDPSocket) Statistics() TransportStatistics {
	stats := TransportStatistics{
		PacketsSent:     s.counters.packetsSent.Load(),
		PacketsReceived: s.counters.packetsReceived.Load(),
		BytesSent:       s.counters.bytesSent.Load(),
		BytesReceived:   s.counters.bytesReceived.Load(),
		ErrorsSend:      s.counters.errorsSend.Load(),
		ErrorsReceive:   s.counters.errorsReceive.Load(),
		ConnectionTime:  s.createdAt,
		LocalAddr:       s.conn.LocalAddr().String(),
	}
	if last := s.counters.lastActivity.Load(); last != 0 {
		stats.LastActivity = time.Unix(0, last)
	}
	return stats
}

// readLoop читает датаграммы до закрытия сокета
func (s *UDPSocket) readLoop(handler PacketHandler) {
	defer close(s.readDone)

	buffer := make([]byte, s.config.BufferSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			classified := classifyNetworkError("UDP read", err)
			if errors.Is(err, net.ErrClosed) || !s.IsActive() {
				return
			}

			s.counters.errorsReceive.Add(1)
			switch ErrorType(classified) {
			case ErrorTypeConnection, ErrorTypeTemporary, ErrorTypeTimeout:
				s.log.WithError(classified).Debug("ошибка чтения UDP, продолжаем")
			default:
				s.log.WithError(classified).Error("ошибка чтения UDP")
				time.Sleep(readErrorBackoff)
			}
			continue
		}

		s.counters.packetsReceived.Add(1)
		s.counters.bytesReceived.Add(uint64(n))
		s.counters.touch()

		handler(buffer[:n], from)
	}
}
