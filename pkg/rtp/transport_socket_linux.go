//go:build linux

package rtp

import (
	"golang.org/x/sys/unix"
)

// voiceSocketPriority приоритет сокета для интерактивного аудио
const voiceSocketPriority = 6

// applyPlatformSockOpts применяет Linux-специфичные настройки сокета
func applyPlatformSockOpts(fd uintptr, config SocketConfig) error {
	intFd := int(fd)

	// SO_PRIORITY может быть запрещен в контейнерах, это не ошибка
	_ = unix.SetsockoptInt(intFd, unix.SOL_SOCKET, unix.SO_PRIORITY, voiceSocketPriority)

	if config.DSCP > 0 {
		return setSockOptDSCP(intFd, config.DSCP)
	}
	return nil
}

// setSockOptDSCP устанавливает DSCP маркировку (старшие 6 бит TOS)
func setSockOptDSCP(fd, dscp int) error {
	tos := dscp << 2

	errV4 := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos)
	errV6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)

	// Сокет одного семейства принимает только одну из опций
	if errV4 != nil && errV6 != nil {
		return errV4
	}
	return nil
}
