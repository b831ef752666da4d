package voip

import (
	"fmt"
	"net"
	"strconv"
)

// MaxRTPPort наибольший допустимый RTP порт: RTCP занимает следующий
const MaxRTPPort = 65534

// discoveryTargets адреса, по маршруту к которым определяется локальный IP.
// Пакеты на них не отправляются.
var discoveryTargets = []string{"8.8.8.8:53", "[2001:4860:4860::8888]:53"}

// Endpoint IP адрес и порт
type Endpoint struct {
	IP   net.IP
	Port int
}

// IsSet проверяет, задан ли адрес
func (e Endpoint) IsSet() bool {
	return e.IP != nil && e.Port > 0
}

// UDPAddr возвращает адрес в виде *net.UDPAddr, nil если адрес не задан
func (e Endpoint) UDPAddr() *net.UDPAddr {
	if !e.IsSet() {
		return nil
	}
	return &net.UDPAddr{IP: e.IP, Port: e.Port}
}

func (e Endpoint) String() string {
	if !e.IsSet() {
		return ""
	}
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}

// addresses локальные и удаленные адреса сессии
type addresses struct {
	localRTP   Endpoint
	localRTCP  Endpoint
	remoteRTP  Endpoint
	remoteRTCP Endpoint
}

// endpointPair строит пару RTP/RTCP адресов: RTCP на порту port+1
func endpointPair(ip string, port int) (Endpoint, Endpoint, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Endpoint{}, Endpoint{}, fmt.Errorf("некорректный IP адрес %q", ip)
	}
	if port < 1 || port > MaxRTPPort {
		return Endpoint{}, Endpoint{}, fmt.Errorf("порт %d вне диапазона 1..%d", port, MaxRTPPort)
	}
	if v4 := parsed.To4(); v4 != nil {
		parsed = v4
	}
	return Endpoint{IP: parsed, Port: port}, Endpoint{IP: parsed, Port: port + 1}, nil
}

// discoverLocalIP возвращает локальный адрес маршрута по умолчанию
// или пустую строку, если маршрута нет
func discoverLocalIP(targets []string) string {
	for _, target := range targets {
		conn, err := net.Dial("udp", target)
		if err != nil {
			continue
		}
		addr, ok := conn.LocalAddr().(*net.UDPAddr)
		conn.Close()
		if ok && addr.IP != nil {
			return addr.IP.String()
		}
	}
	return ""
}
