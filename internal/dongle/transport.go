package dongle

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/goburrow/serial"
)

// Transport carries the dongle's byte stream. Closing it must unblock a
// pending Read.
type Transport interface {
	io.ReadWriteCloser
}

// DialTCP connects to a dongle exposed through a serial-to-TCP bridge.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (Transport, error) {
	d := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

type SerialParams struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	Timeout  time.Duration
}

func EnsureSerialDefaults(sp *SerialParams) {
	if sp.BaudRate == 0 {
		sp.BaudRate = 9600
	}
	if sp.DataBits == 0 {
		sp.DataBits = 8
	}
	if sp.StopBits == 0 {
		sp.StopBits = 1
	}
	if sp.Parity == "" {
		sp.Parity = "N"
	}
	if sp.Timeout <= 0 {
		sp.Timeout = time.Second
	}
}

// OpenSerial opens a local serial port. Read timeouts are swallowed so the
// port behaves like a blocking stream.
func OpenSerial(sp SerialParams) (Transport, error) {
	EnsureSerialDefaults(&sp)
	port, err := serial.Open(&serial.Config{
		Address:  sp.Address,
		BaudRate: sp.BaudRate,
		DataBits: sp.DataBits,
		StopBits: sp.StopBits,
		Parity:   sp.Parity,
		Timeout:  sp.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return &serialTransport{port: port}, nil
}

type serialTransport struct {
	port serial.Port
}

func (s *serialTransport) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}

func (s *serialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }

func (s *serialTransport) Close() error { return s.port.Close() }
