package portregistry

import (
	"fmt"
	"net"
)

// scanner checks whether specific ports are available on the host machine
// by asking the OS directly via net.Listen/net.ListenPacket, rather than
// parsing /proc/net/* or shelling out to lsof/ss.
type scanner struct{}

// isPortAvailable binds to ":port" on all interfaces — the same address
// space the container runtime publishes to — and reports whether the bind
// succeeds. TCP only: this registry only ever allocates TCP service ports.
func (scanner) isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	defer func() { _ = listener.Close() }()
	return true
}
