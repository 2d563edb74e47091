package dongle

import (
	"errors"
	"io"
	"time"
)

const (
	amberCommandStart = 0xFF
	amberDataInd      = 0x03
)

var amberReset = []byte{0xFF, 0x05, 0x00, 0xFA}

// Amber reads Amber Wireless AMB8465 style dongles. In transparent mode a
// frame is "L 44 ... RSSI"; in command mode the frame is wrapped as
// "FF 03 L 44 ... RSSI CS" with CS the XOR of all preceding octets.
type Amber struct {
	timeout   time.Duration
	threshold int
	rssi      bool
}

func NewAmber(opts Options) *Amber {
	return &Amber{
		timeout:   opts.fragmentTimeout(),
		threshold: opts.resetThreshold(),
		rssi:      !opts.NoRSSI,
	}
}

func (a *Amber) Name() string { return "amber" }

func (a *Amber) Init(io.Writer) error { return nil }

func (a *Amber) Reset(w io.Writer) error {
	_, err := w.Write(amberReset)
	return err
}

func (a *Amber) ResetThreshold() int { return a.threshold }

func (a *Amber) ReadFrame(src Source) (Result, error) {
	var res Result
	for len(res.Discarded) < maxDiscardBatch {
		l, err := src.Next(firstTimeout(res, a.timeout))
		if errors.Is(err, ErrTimeout) {
			return res, nil
		}
		if err != nil {
			return res, err
		}

		var prefix []byte
		if l == amberCommandStart {
			if next, err := src.Peek(a.timeout); err == nil && next == amberDataInd {
				_, _ = src.Next(a.timeout)
				prefix = []byte{amberCommandStart, amberDataInd}
				if l, err = src.Next(a.timeout); err != nil {
					res.Discarded = append(res.Discarded, prefix...)
					if errors.Is(err, ErrStreamClosed) {
						return res, err
					}
					continue
				}
			}
		}

		c, err := src.Peek(a.timeout)
		if err != nil || c != cFieldSendNoReply || l < minLField {
			res.Discarded = append(res.Discarded, prefix...)
			res.Discarded = append(res.Discarded, l)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}

		frame := make([]byte, int(l)+1)
		frame[0] = l
		n, err := src.ReadFull(frame[1:], a.timeout)
		read := append(prefix, frame[:n+1]...)
		if err == nil && a.rssi {
			var r byte
			if r, err = src.Next(a.timeout); err == nil {
				read = append(read, r)
			}
		}
		if err == nil && prefix != nil {
			var cs byte
			if cs, err = src.Next(a.timeout); err == nil && cs != xorAll(read) {
				res.Discarded = append(res.Discarded, append(read, cs)...)
				continue
			}
		}
		if err != nil {
			res.Discarded = append(res.Discarded, read...)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}

		raw := RawFrame{Payload: frame, Received: time.Now()}
		if a.rssi {
			raw.RSSI, raw.HasRSSI = cc11xxRSSI(read[len(read)-1]), true
		}
		res.Frame = &raw
		return res, nil
	}
	return res, nil
}

func xorAll(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}
