//go:build !linux && !darwin

package rtp

// applyPlatformSockOpts на прочих платформах DSCP через setsockopt
// не поддерживается, сокет используется с настройками по умолчанию
func applyPlatformSockOpts(fd uintptr, config SocketConfig) error {
	return nil
}
