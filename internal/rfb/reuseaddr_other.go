//go:build !linux

package rfb

import "syscall"

// reuseAddrControl is a no-op on platforms other than Linux; the base
// listen already gets a fresh ephemeral bind without SO_REUSEPORT
// semantics.
func reuseAddrControl(network, address string, c syscall.RawConn) error {
	return nil
}
