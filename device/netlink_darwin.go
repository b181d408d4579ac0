//go:build darwin

package device

// OpenLink has no Darwin implementation: AF_PACKET raw sockets are a
// Linux-specific mechanism. Callers on Darwin should use MockDevice, or a
// real capture backend built on BPF devices, which this toolkit does not
// provide.
func OpenLink(name string) (*LinkDevice, error) {
	return nil, ErrUnsupportedPlatform
}

// LinkDevice is declared here too so the type exists on every platform;
// on Darwin, OpenLink never returns a non-nil value so its methods are
// unreachable.
type LinkDevice struct{}

func (l *LinkDevice) Name() string             { return "" }
func (l *LinkDevice) MTU() int                 { return 0 }
func (l *LinkDevice) Open() error              { return ErrUnsupportedPlatform }
func (l *LinkDevice) Send(packet []byte) error { return ErrUnsupportedPlatform }
func (l *LinkDevice) Recv() ([]byte, error)    { return nil, ErrUnsupportedPlatform }
func (l *LinkDevice) Close() error             { return nil }
