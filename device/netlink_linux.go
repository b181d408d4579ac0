//go:build linux

package device

import (
	"errors"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// LinkDevice is a Device backed by a real Linux network interface: link
// metadata (name, MTU) comes from netlink, and packet I/O goes through a
// raw AF_PACKET socket bound to that link's interface index.
type LinkDevice struct {
	name    string
	mtu     int
	ifindex int
	fd      int
}

// OpenLink resolves name via netlink and opens an AF_PACKET socket bound
// to it. The caller needs CAP_NET_RAW; without it OpenLink returns
// ErrPermissionDenied. An interface name netlink cannot resolve returns
// ErrDeviceNotFound.
func OpenLink(name string) (*LinkDevice, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	l := &LinkDevice{
		name:    link.Attrs().Name,
		mtu:     link.Attrs().MTU,
		ifindex: link.Attrs().Index,
		fd:      -1,
	}
	if err := l.Open(); err != nil {
		return nil, err
	}
	return l, nil
}

func htons(port int) uint16 {
	return uint16(port<<8) | uint16(port>>8)
}

// Name implements Device.
func (l *LinkDevice) Name() string { return l.name }

// MTU implements Device.
func (l *LinkDevice) MTU() int { return l.mtu }

// Open implements Device by creating and binding the raw socket. OpenLink
// already leaves the device open; Open only succeeds again after Close.
func (l *LinkDevice) Open() error {
	if l.fd >= 0 {
		return ErrAlreadyOpen
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		if err == unix.EPERM || err == unix.EACCES {
			return ErrPermissionDenied
		}
		return err
	}

	addr := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  l.ifindex,
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return err
	}
	l.fd = fd
	return nil
}

// Send implements Device by writing packet directly to the bound raw
// socket.
func (l *LinkDevice) Send(packet []byte) error {
	if l.fd < 0 {
		return ErrClosed
	}
	return unix.Send(l.fd, packet, 0)
}

// Recv implements Device by blocking on a read from the bound raw
// socket.
func (l *LinkDevice) Recv() ([]byte, error) {
	if l.fd < 0 {
		return nil, ErrClosed
	}
	buf := make([]byte, l.mtu+14) // room for the Ethernet header
	n, _, err := unix.Recvfrom(l.fd, buf, 0)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close implements Device.
func (l *LinkDevice) Close() error {
	if l.fd < 0 {
		return nil
	}
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}
