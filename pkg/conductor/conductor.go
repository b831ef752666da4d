// Package conductor связывает представление (консоль или GUI) с
// контроллером сессии: события представления превращаются в вызовы
// клиента, а результаты операций возвращаются в представление.
package conductor

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arzzra/voip_client/pkg/codec"
	"github.com/arzzra/voip_client/pkg/voip"
)

// Events события представления
type Events interface {
	OnEncoderUpdate(encoder string)
	OnDecodersUpdate(decoders []string)
	OnSessionEvent(on bool, localIP string, localPort int, remoteIP string, remotePort int, encoder string, decoders []string)
	OnSendAudio(send bool)
	OnPlayoutAudio(playout bool)
}

// View представление, которым управляет Conductor
type View interface {
	SetSupportedCodecs(codecs []string)
	SetLocalIPAddress(ip string)
	// ShowCompletion показывает результат асинхронной операции
	ShowCompletion(op voip.Operation, ok bool)
}

// Controller операции клиента, которые использует Conductor
type Controller interface {
	SupportedCodecs() []codec.Spec
	LocalIPAddress() string
	Subscribe(cb voip.Callback) func()

	SetLocalAddress(ip string, port int)
	SetRemoteAddress(ip string, port int)
	SetEncoder(name string)
	SetDecoders(names []string)
	StartSession()
	StopSession()
	StartSend()
	StopSend()
	StartPlayout()
	StopPlayout()
}

var (
	_ Controller    = (*voip.Client)(nil)
	_ Events        = (*Conductor)(nil)
	_ voip.Callback = (*Conductor)(nil)
)

// Conductor переводит события представления в вызовы Controller
type Conductor struct {
	client Controller
	view   View
	log    logrus.FieldLogger

	mutex       sync.Mutex
	unsubscribe func()
}

// New создает Conductor
func New(client Controller, view View, logger logrus.FieldLogger) *Conductor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Conductor{
		client: client,
		view:   view,
		log:    logger.WithField("component", "conductor"),
	}
}

// Start передает представлению кодеки и локальный адрес и подписывается
// на результаты операций
func (c *Conductor) Start() {
	specs := c.client.SupportedCodecs()
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, spec.Name())
	}
	c.view.SetSupportedCodecs(names)
	c.view.SetLocalIPAddress(c.client.LocalIPAddress())

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.unsubscribe == nil {
		c.unsubscribe = c.client.Subscribe(c)
	}
}

// Stop отменяет подписку на результаты
func (c *Conductor) Stop() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Conductor) OnEncoderUpdate(encoder string) {
	c.client.SetEncoder(encoder)
}

func (c *Conductor) OnDecodersUpdate(decoders []string) {
	c.client.SetDecoders(decoders)
}

// OnSessionEvent запускает сессию с заданными адресами и кодеками или
// останавливает ее. Вызовы ставятся в очередь клиента в порядке вызова,
// поэтому кодеки применяются уже к запущенной сессии.
func (c *Conductor) OnSessionEvent(on bool, localIP string, localPort int, remoteIP string, remotePort int, encoder string, decoders []string) {
	c.log.WithFields(logrus.Fields{
		"on":     on,
		"local":  localIP,
		"remote": remoteIP,
	}).Info("событие сессии")

	if !on {
		c.client.StopSession()
		return
	}
	c.client.SetLocalAddress(localIP, localPort)
	c.client.SetRemoteAddress(remoteIP, remotePort)
	c.client.StartSession()
	c.client.SetEncoder(encoder)
	c.client.SetDecoders(decoders)
}

func (c *Conductor) OnSendAudio(send bool) {
	if send {
		c.client.StartSend()
	} else {
		c.client.StopSend()
	}
}

func (c *Conductor) OnPlayoutAudio(playout bool) {
	if playout {
		c.client.StartPlayout()
	} else {
		c.client.StopPlayout()
	}
}

// Результаты операций

func (c *Conductor) OnStartSessionCompleted(ok bool) { c.show(voip.OperationStartSession, ok) }
func (c *Conductor) OnStopSessionCompleted(ok bool)  { c.show(voip.OperationStopSession, ok) }
func (c *Conductor) OnStartSendCompleted(ok bool)    { c.show(voip.OperationStartSend, ok) }
func (c *Conductor) OnStopSendCompleted(ok bool)     { c.show(voip.OperationStopSend, ok) }
func (c *Conductor) OnStartPlayoutCompleted(ok bool) { c.show(voip.OperationStartPlayout, ok) }
func (c *Conductor) OnStopPlayoutCompleted(ok bool)  { c.show(voip.OperationStopPlayout, ok) }

func (c *Conductor) show(op voip.Operation, ok bool) {
	c.log.WithFields(logrus.Fields{
		"operation": op.String(),
		"ok":        ok,
	}).Debug("операция завершена")
	c.view.ShowCompletion(op, ok)
}
