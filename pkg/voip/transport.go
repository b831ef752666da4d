package voip

import (
	"errors"
	"net"
	"sync"

	"github.com/gammazero/deque"
	"github.com/sirupsen/logrus"

	"github.com/arzzra/voip_client/pkg/engine"
)

// packetKind тип пересылаемого пакета
type packetKind int

const (
	kindRTP packetKind = iota
	kindRTCP
)

func (k packetKind) String() string {
	if k == kindRTCP {
		return "rtcp"
	}
	return "rtp"
}

// outboundPacket копия исходящего пакета с сессией, которой он принадлежит
type outboundPacket struct {
	sessionID string
	kind      packetKind
	data      []byte
}

// outboundQueue исходящие пакеты, ожидающие отправки рабочим потоком
type outboundQueue struct {
	mutex   sync.Mutex
	packets deque.Deque[outboundPacket]
}

func (q *outboundQueue) push(packet outboundPacket) {
	q.mutex.Lock()
	q.packets.PushBack(packet)
	q.mutex.Unlock()
}

func (q *outboundQueue) pop() (outboundPacket, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.packets.Len() == 0 {
		return outboundPacket{}, false
	}
	return q.packets.PopFront(), true
}

// transportAdapter транспорт, который клиент передает движку при создании
// канала. Адаптер привязан к одной сессии: пакеты каналов прошлых сессий
// в сокеты новой сессии не попадают.
type transportAdapter struct {
	client    *Client
	sessionID string
}

var _ engine.Transport = (*transportAdapter)(nil)

// SendRTP копирует пакет и ставит его отправку в очередь
func (t *transportAdapter) SendRTP(packet []byte, _ engine.PacketOptions) bool {
	t.client.enqueue(t.sessionID, kindRTP, packet)
	return true
}

// SendRTCP копирует пакет и ставит его отправку в очередь
func (t *transportAdapter) SendRTCP(packet []byte) bool {
	t.client.enqueue(t.sessionID, kindRTCP, packet)
	return true
}

func copyPacket(packet []byte) []byte {
	buf := make([]byte, len(packet))
	copy(buf, packet)
	return buf
}

// enqueue сохраняет копию пакета и ставит в очередь рабочего потока его
// отправку. Пакет всегда считается принятым: после Close он отбрасывается.
func (c *Client) enqueue(sessionID string, kind packetKind, packet []byte) {
	c.outbound.push(outboundPacket{sessionID: sessionID, kind: kind, data: copyPacket(packet)})
	if !c.worker.Post(c.flushOutbound) {
		c.metrics.packetDropped(directionOutbound, kind)
		c.log.WithError(newError(ErrorCodeClosed, "клиент закрыт", nil)).
			WithField("kind", kind.String()).Debug("исходящий пакет отброшен")
	}
}

// flushOutbound отправляет все накопленные исходящие пакеты (рабочий поток).
// Вызывается задачей после каждого пакета и напрямую перед закрытием
// сокетов, чтобы пакеты освобождаемого канала (RTCP BYE) успели уйти.
func (c *Client) flushOutbound() {
	for {
		packet, ok := c.outbound.pop()
		if !ok {
			return
		}
		if packet.sessionID == "" || packet.sessionID != c.sessionID {
			c.metrics.packetDropped(directionOutbound, packet.kind)
			c.log.WithFields(logrus.Fields{
				"kind":       packet.kind.String(),
				"session_id": packet.sessionID,
			}).Debug("пакет завершенной сессии отброшен")
			continue
		}
		c.sendPacket(packet.kind, packet.data)
	}
}

// sendPacket отправляет пакет в сокет сессии (рабочий поток)
func (c *Client) sendPacket(kind packetKind, packet []byte) {
	sock, remote := c.rtpSocket, c.addrs.remoteRTP
	if kind == kindRTCP {
		sock, remote = c.rtcpSocket, c.addrs.remoteRTCP
	}

	if sock == nil || !sock.IsActive() {
		c.metrics.packetDropped(directionOutbound, kind)
		c.log.WithField("kind", kind.String()).Debug("нет сокета, исходящий пакет отброшен")
		return
	}
	if !remote.IsSet() {
		c.metrics.packetDropped(directionOutbound, kind)
		c.sessionLog().WithField("kind", kind.String()).Debug("удаленный адрес не задан, пакет отброшен")
		return
	}

	if err := sock.SendTo(packet, remote.UDPAddr()); err != nil {
		c.metrics.socketError(kind)
		c.sessionLog().WithError(newError(ErrorCodeSocketSend, "ошибка отправки", err)).WithFields(logrus.Fields{
			"kind":   kind.String(),
			"remote": remote.String(),
		}).Warn("пакет не отправлен")
		return
	}
	c.metrics.packetForwarded(directionOutbound, kind, len(packet))
}

// inboundHandler возвращает обработчик сокета сессии sessionID: копия
// датаграммы передается в движок из рабочего потока
func (c *Client) inboundHandler(sessionID string, kind packetKind) func(packet []byte, from *net.UDPAddr) {
	return func(packet []byte, _ *net.UDPAddr) {
		buf := copyPacket(packet)
		c.worker.Post(func() { c.injectPacket(sessionID, kind, buf) })
	}
}

// injectPacket передает входящий пакет движку (рабочий поток). Пакет,
// прочитанный сокетом другой сессии, отбрасывается.
func (c *Client) injectPacket(sessionID string, kind packetKind, packet []byte) {
	if !c.hasChannel || sessionID != c.sessionID {
		c.metrics.packetDropped(directionInbound, kind)
		c.log.WithFields(logrus.Fields{
			"kind":       kind.String(),
			"session_id": sessionID,
		}).Debug("нет канала сессии, входящий пакет отброшен")
		return
	}

	var err error
	if kind == kindRTCP {
		err = c.engine.ReceivedRTCPPacket(c.channel, packet)
	} else {
		err = c.engine.ReceivedRTPPacket(c.channel, packet)
	}

	switch {
	case err == nil:
		c.metrics.packetForwarded(directionInbound, kind, len(packet))
	case errors.Is(err, engine.ErrUnknownChannel):
		c.fatal(newError(ErrorCodeEngineFailure, "движок не знает активный канал", err))
	default:
		c.sessionLog().WithError(err).WithField("kind", kind.String()).Debug("движок отклонил входящий пакет")
	}
}
