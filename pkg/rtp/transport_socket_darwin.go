//go:build darwin

package rtp

import (
	"golang.org/x/sys/unix"
)

// applyPlatformSockOpts применяет macOS-специфичные настройки сокета.
// SO_PRIORITY на macOS отсутствует, настраивается только DSCP.
func applyPlatformSockOpts(fd uintptr, config SocketConfig) error {
	intFd := int(fd)

	// SO_NOSIGPIPE не критичен, ошибку игнорируем
	_ = unix.SetsockoptInt(intFd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)

	if config.DSCP > 0 {
		tos := config.DSCP << 2
		errV4 := unix.SetsockoptInt(intFd, unix.IPPROTO_IP, unix.IP_TOS, tos)
		errV6 := unix.SetsockoptInt(intFd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
		if errV4 != nil && errV6 != nil {
			return errV4
		}
	}
	return nil
}
