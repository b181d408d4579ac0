// Package device abstracts the packet source/sink this toolkit reads
// from and writes to: an interface small enough to be backed by an
// in-memory mock for tests, or by a real network link on platforms that
// support one.
package device

import "errors"

// ErrClosed is returned by Send/Recv once the device has been closed.
var ErrClosed = errors.New("device: closed")

// ErrDeviceNotFound is returned by OpenLink when no interface with the
// requested name exists.
var ErrDeviceNotFound = errors.New("device: not found")

// ErrPermissionDenied is returned by OpenLink when the caller lacks the
// privileges needed to open a raw socket on the interface.
var ErrPermissionDenied = errors.New("device: permission denied")

// ErrAlreadyOpen is returned by Open on a device that is already open.
// Both backends open at construction, so Open only succeeds after an
// intervening Close.
var ErrAlreadyOpen = errors.New("device: already open")

// ErrUnsupportedPlatform is returned by platform backends that have no
// real implementation on the current GOOS.
var ErrUnsupportedPlatform = errors.New("device: unsupported platform")

// Device is a named network interface capable of sending and receiving
// raw packets.
type Device interface {
	// Name returns the interface name, e.g. "eth0".
	Name() string
	// MTU returns the interface's maximum transmission unit in bytes.
	MTU() int
	// Open readies the device for I/O. Devices are constructed open;
	// calling Open on one that is already open returns ErrAlreadyOpen.
	Open() error
	// Send transmits one packet.
	Send(packet []byte) error
	// Recv blocks until one packet is available or the device is closed.
	Recv() ([]byte, error)
	// Close releases any resources held by the device.
	Close() error
}
