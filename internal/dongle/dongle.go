// Package dongle turns the byte streams of wireless M-Bus radio dongles into
// link-layer frames. Each supported chipset has its own Receiver; Conn runs a
// receiver against a transport and reports to a Listener.
package dongle

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrStreamClosed = errors.New("dongle stream closed")
	ErrTimeout      = errors.New("dongle read timeout")
)

const (
	// DefaultFragmentTimeout bounds the gap between octets of one frame.
	DefaultFragmentTimeout = 500 * time.Millisecond
	// DefaultResetThreshold is the number of consecutive discard batches
	// after which the dongle is reset.
	DefaultResetThreshold = 5

	// maxDiscardBatch caps the octets collected before a flush.
	maxDiscardBatch = 256

	cFieldSendNoReply = 0x44
	// minLField covers C, the address and the CI field.
	minLField = 10
)

// RawFrame is a link-layer frame, starting with its L field, as delivered by
// a dongle.
type RawFrame struct {
	Payload  []byte
	RSSI     int
	HasRSSI  bool
	Received time.Time
}

// Listener receives the outcome of a connection. Calls are serialized.
type Listener interface {
	NewFrame(RawFrame)
	Discarded([]byte)
	StreamClosed(error)
}

// ListenerFuncs adapts plain functions to Listener; nil members are skipped.
type ListenerFuncs struct {
	OnFrame     func(RawFrame)
	OnDiscarded func([]byte)
	OnClosed    func(error)
}

func (l ListenerFuncs) NewFrame(f RawFrame) {
	if l.OnFrame != nil {
		l.OnFrame(f)
	}
}

func (l ListenerFuncs) Discarded(b []byte) {
	if l.OnDiscarded != nil {
		l.OnDiscarded(b)
	}
}

func (l ListenerFuncs) StreamClosed(err error) {
	if l.OnClosed != nil {
		l.OnClosed(err)
	}
}

// Result is the outcome of one ReadFrame attempt. Discarded octets precede
// the frame in the stream.
type Result struct {
	Frame     *RawFrame
	Discarded []byte
}

// Receiver implements the framing of one dongle type.
type Receiver interface {
	Name() string
	// Init configures the dongle after the transport is opened.
	Init(w io.Writer) error
	// ReadFrame blocks until a frame is found, discarded octets are ready to
	// be flushed, or the stream fails.
	ReadFrame(src Source) (Result, error)
	// Reset sends the dongle's reset command.
	Reset(w io.Writer) error
	// ResetThreshold is the number of consecutive discarding attempts that
	// trigger Reset; zero disables it.
	ResetThreshold() int
}

// Options tune a receiver; zero values select the defaults.
type Options struct {
	FragmentTimeout time.Duration
	ResetThreshold  int
	// Mode selects the CUL radio mode: "T", "S" or "C".
	Mode string
	// NoRSSI tells Amber that the dongle does not append an RSSI octet.
	NoRSSI bool
}

func (o Options) fragmentTimeout() time.Duration {
	if o.FragmentTimeout <= 0 {
		return DefaultFragmentTimeout
	}
	return o.FragmentTimeout
}

func (o Options) resetThreshold() int {
	if o.ResetThreshold < 0 {
		return 0
	}
	if o.ResetThreshold == 0 {
		return DefaultResetThreshold
	}
	return o.ResetThreshold
}

// New builds the receiver for a dongle type name.
func New(kind string, opts Options) (Receiver, error) {
	switch strings.ToLower(kind) {
	case "amber":
		return NewAmber(opts), nil
	case "imst", "im871a":
		return NewIMST(opts), nil
	case "radiocrafts", "rc":
		return NewRadioCrafts(opts), nil
	case "cul":
		return NewCUL(opts)
	default:
		return nil, fmt.Errorf("unknown dongle type %q", kind)
	}
}

// cc11xxRSSI converts the raw RSSI register of a TI CC11xx transceiver.
func cc11xxRSSI(raw byte) int {
	v := int(raw)
	if v >= 128 {
		return (v-256)/2 - 74
	}
	return v/2 - 74
}

// firstTimeout blocks while nothing is pending and otherwise waits one
// fragment so pending discards can be flushed when the line goes idle.
func firstTimeout(res Result, fragment time.Duration) time.Duration {
	if len(res.Discarded) == 0 {
		return 0
	}
	return fragment
}
