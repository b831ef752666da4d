package voip

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/arzzra/voip_client/pkg/engine"
	"github.com/arzzra/voip_client/pkg/rtp"
)

// Состояния сессии
const (
	stateIdle     = "idle"
	stateStarting = "starting"
	stateActive   = "active"
	stateStopping = "stopping"
)

// События конечного автомата сессии
const (
	eventStart       = "start"
	eventStarted     = "started"
	eventStartFailed = "start_failed"
	eventStop        = "stop"
	eventStopped     = "stopped"
)

func newSessionFSM(c *Client) *fsm.FSM {
	return fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{stateIdle}, Dst: stateStarting},
			{Name: eventStarted, Src: []string{stateStarting}, Dst: stateActive},
			{Name: eventStartFailed, Src: []string{stateStarting}, Dst: stateIdle},
			{Name: eventStop, Src: []string{stateActive}, Dst: stateStopping},
			{Name: eventStopped, Src: []string{stateStopping}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				c.metrics.stateChanged(e.Dst)
				c.log.WithFields(logrus.Fields{
					"event":      e.Event,
					"from":       e.Src,
					"state":      e.Dst,
					"session_id": c.sessionID,
				}).Debug("переход состояния сессии")
			},
		},
	)
}

// transition выполняет событие автомата. Все события вызываются только из
// допустимых состояний, поэтому ошибка означает ошибку программы.
func (c *Client) transition(event string) {
	if err := c.state.Event(context.Background(), event); err != nil {
		c.sessionLog().WithError(err).WithField("event", event).Error("недопустимый переход состояния")
	}
}

// sessionLog возвращает логгер с полями текущей сессии
func (c *Client) sessionLog() logrus.FieldLogger {
	log := c.log.WithField("state", c.state.Current())
	if c.sessionID != "" {
		log = log.WithField("session_id", c.sessionID)
	}
	if c.hasChannel {
		log = log.WithField("channel", c.channel)
	}
	return log
}

func (c *Client) setLocalAddress(ip string, port int) {
	rtpAddr, rtcpAddr, err := endpointPair(ip, port)
	if err != nil {
		c.log.WithError(newError(ErrorCodeInvalidAddress, "локальный адрес не изменен", err)).Warn("некорректный локальный адрес")
		return
	}
	c.addrs.localRTP, c.addrs.localRTCP = rtpAddr, rtcpAddr
	c.log.WithFields(logrus.Fields{
		"rtp":  rtpAddr.String(),
		"rtcp": rtcpAddr.String(),
	}).Debug("локальный адрес установлен")
}

func (c *Client) setRemoteAddress(ip string, port int) {
	rtpAddr, rtcpAddr, err := endpointPair(ip, port)
	if err != nil {
		c.log.WithError(newError(ErrorCodeInvalidAddress, "удаленный адрес не изменен", err)).Warn("некорректный удаленный адрес")
		return
	}
	c.addrs.remoteRTP, c.addrs.remoteRTCP = rtpAddr, rtcpAddr
	c.log.WithFields(logrus.Fields{
		"rtp":  rtpAddr.String(),
		"rtcp": rtcpAddr.String(),
	}).Debug("удаленный адрес установлен")
}

func (c *Client) setEncoder(name string) {
	if !c.state.Is(stateActive) {
		c.sessionLog().WithField("codec", name).Warn("SetEncoder без активной сессии")
		return
	}

	spec, ok := c.catalog.Lookup(name)
	if !ok {
		c.sessionLog().WithField("codec", name).Debug("кодек не поддерживается, пропускаем")
		return
	}
	payloadType, _ := spec.PayloadType()

	if err := c.engine.SetSendCodec(c.channel, payloadType, spec.Format); err != nil {
		c.fatal(newError(ErrorCodeEngineFailure, "движок отклонил кодек отправки "+name, err))
		return
	}
	c.enabledEncoder = name
	c.sessionLog().WithFields(logrus.Fields{
		"codec":        spec.Format.String(),
		"payload_type": payloadType,
	}).Info("кодек отправки установлен")
}

func (c *Client) setDecoders(names []string) {
	if !c.state.Is(stateActive) {
		c.sessionLog().WithField("codecs", names).Warn("SetDecoders без активной сессии")
		return
	}

	formats, accepted := c.catalog.Select(names)
	if err := c.engine.SetReceiveCodecs(c.channel, formats); err != nil {
		c.fatal(newError(ErrorCodeEngineFailure, "движок отклонил кодеки приема", err))
		return
	}
	c.enabledDecoders = accepted
	c.sessionLog().WithField("codecs", accepted).Info("кодеки приема установлены")
}

func (c *Client) startSession() {
	if c.closed || !c.state.Is(stateIdle) {
		c.sessionLog().WithError(newError(ErrorCodeSessionNotIdle, "сессия уже запущена", nil)).Warn("StartSession отклонен")
		c.complete(OperationStartSession, false)
		return
	}
	if !c.addrs.localRTP.IsSet() {
		c.log.WithError(newError(ErrorCodeAddressNotSet, "локальный адрес не задан", nil)).Warn("StartSession отклонен")
		c.complete(OperationStartSession, false)
		return
	}

	c.transition(eventStart)
	c.sessionID = uuid.NewString()

	channel := c.engine.CreateChannel(&transportAdapter{client: c, sessionID: c.sessionID})

	rtpSocket, err := c.bind(c.addrs.localRTP)
	if err != nil {
		c.abortStart(channel, err)
		return
	}
	rtcpSocket, err := c.bind(c.addrs.localRTCP)
	if err != nil {
		closeSocket(rtpSocket, c.log)
		c.abortStart(channel, err)
		return
	}

	if err := rtpSocket.Start(c.inboundHandler(c.sessionID, kindRTP)); err != nil {
		closeSocket(rtpSocket, c.log)
		closeSocket(rtcpSocket, c.log)
		c.abortStart(channel, err)
		return
	}
	if err := rtcpSocket.Start(c.inboundHandler(c.sessionID, kindRTCP)); err != nil {
		closeSocket(rtpSocket, c.log)
		closeSocket(rtcpSocket, c.log)
		c.abortStart(channel, err)
		return
	}

	c.channel, c.hasChannel = channel, true
	c.rtpSocket, c.rtcpSocket = rtpSocket, rtcpSocket
	c.sending, c.playing = false, false
	c.transition(eventStarted)
	c.metrics.sessionStarted()

	c.sessionLog().WithFields(logrus.Fields{
		"rtp":    rtpSocket.LocalAddr().String(),
		"rtcp":   rtcpSocket.LocalAddr().String(),
		"remote": c.addrs.remoteRTP.String(),
	}).Info("сессия запущена")
	c.complete(OperationStartSession, true)
}

// abortStart освобождает канал после неудачного захвата сокетов
func (c *Client) abortStart(channel engine.ChannelID, cause error) {
	c.sessionLog().WithError(newError(ErrorCodeSocketBind, "не удалось открыть сокеты сессии", cause)).Error("сессия не запущена")

	if err := c.engine.ReleaseChannel(channel); err != nil {
		c.fatal(newError(ErrorCodeEngineFailure, "не удалось освободить канал", err))
	}
	c.transition(eventStartFailed)
	c.sessionID = ""
	c.complete(OperationStartSession, false)
}

func (c *Client) stopSession() {
	if !c.state.Is(stateActive) {
		c.sessionLog().WithError(newError(ErrorCodeSessionNotActive, "нет активной сессии", nil)).Warn("StopSession отклонен")
		c.complete(OperationStopSession, false)
		return
	}
	c.transition(eventStop)

	// Ошибка остановки потоков не оставляет сессию занятой: канал и сокеты
	// освобождаются в любом случае, результат операции false
	err := errors.Join(c.engine.StopSend(c.channel), c.engine.StopPlayout(c.channel))
	if err != nil {
		c.sessionLog().WithError(newError(ErrorCodeEngineFailure, "движок не остановил поток", err)).
			Error("сессия освобождается принудительно")
	}

	sessionID := c.sessionID
	c.teardown()
	c.transition(eventStopped)

	c.log.WithField("session_id", sessionID).Info("сессия остановлена")
	c.complete(OperationStopSession, err == nil)
}

// toggle переключает отправку или воспроизведение и сообщает результат движка
func (c *Client) toggle(op Operation, call func(engine.ChannelID) error, flag *bool, value bool) {
	if !c.state.Is(stateActive) {
		c.sessionLog().WithError(newError(ErrorCodeSessionNotActive, "нет активной сессии", nil)).
			WithField("operation", op.String()).Warn("операция отклонена")
		c.complete(op, false)
		return
	}

	if err := call(c.channel); err != nil {
		c.sessionLog().WithError(err).WithField("operation", op.String()).Warn("движок отклонил операцию")
		c.complete(op, false)
		return
	}
	*flag = value
	c.sessionLog().WithField("operation", op.String()).Debug("операция выполнена")
	c.complete(op, true)
}

// bind открывает сокет на адресе endpoint
func (c *Client) bind(endpoint Endpoint) (rtp.Socket, error) {
	sock, err := rtp.Bind(endpoint.UDPAddr(), c.config.Socket, c.config.Logger)
	if err != nil {
		return nil, err
	}
	return sock, nil
}

// teardown освобождает канал и сокеты сессии. Канал освобождается до
// закрытия сокетов, чтобы пакеты, отправленные движком при освобождении
// (RTCP BYE), ушли в сеть.
func (c *Client) teardown() {
	c.releaseChannel()
	c.flushOutbound()
	c.closeSockets()
	c.resetSession()
}

func (c *Client) closeSockets() {
	closeSocket(c.rtpSocket, c.log)
	closeSocket(c.rtcpSocket, c.log)
	c.rtpSocket, c.rtcpSocket = nil, nil
}

func (c *Client) releaseChannel() {
	if err := c.engine.ReleaseChannel(c.channel); err != nil {
		c.fatal(newError(ErrorCodeEngineFailure, "не удалось освободить канал", err))
	}
}

// resetSession очищает состояние сессии после освобождения ресурсов
func (c *Client) resetSession() {
	c.channel, c.hasChannel = 0, false
	c.enabledEncoder = ""
	c.enabledDecoders = nil
	c.sending, c.playing = false, false
	c.sessionID = ""
}

func closeSocket(sock rtp.Socket, log logrus.FieldLogger) {
	if sock == nil {
		return
	}
	if err := sock.Close(); err != nil {
		log.WithError(err).Warn("ошибка закрытия сокета")
	}
}
