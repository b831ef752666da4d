package voip

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arzzra/voip_client/pkg/engine"
	"github.com/arzzra/voip_client/pkg/rtp"
)

// DefaultInitTimeout время ожидания инициализации движка в New
const DefaultInitTimeout = 10 * time.Second

// Config конфигурация клиента
type Config struct {
	// EngineFactory создает движок. Вызывается один раз в рабочем потоке.
	EngineFactory func() (engine.Engine, error)

	Logger logrus.FieldLogger
	// Metrics необязательные метрики Prometheus
	Metrics *Metrics
	// FatalHandler вызывается при нарушении инвариантов движка.
	// По умолчанию пишет в лог с уровнем Fatal и завершает процесс.
	FatalHandler func(error)

	// Socket настройки RTP/RTCP сокетов
	Socket rtp.SocketConfig
	// InitTimeout ограничивает ожидание инициализации движка
	InitTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию без фабрики движка
func DefaultConfig() Config {
	return Config{
		Logger:      logrus.StandardLogger(),
		Socket:      rtp.DefaultSocketConfig(),
		InitTimeout: DefaultInitTimeout,
	}
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if c.EngineFactory == nil {
		return fmt.Errorf("фабрика движка обязательна")
	}
	if c.InitTimeout < 0 {
		return fmt.Errorf("таймаут инициализации не может быть отрицательным: %v", c.InitTimeout)
	}
	socket := c.Socket
	socket.ApplyDefaults()
	if err := socket.Validate(); err != nil {
		return fmt.Errorf("неверная конфигурация сокетов: %w", err)
	}
	return nil
}

// applyDefaults заполняет незаданные поля
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = DefaultInitTimeout
	}
	if c.FatalHandler == nil {
		logger := c.Logger
		c.FatalHandler = func(err error) {
			logger.WithError(err).Fatal("нарушение инварианта движка")
		}
	}
	c.Socket.ApplyDefaults()
}
