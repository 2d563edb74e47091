package dongle

import (
	"errors"
	"io"
	"time"
)

// RadioCrafts reads RC1180-MBUS modules: "L 44 ... RSSI" where the RSSI
// octet is minus two times the signal strength in dBm.
type RadioCrafts struct {
	timeout   time.Duration
	threshold int
}

func NewRadioCrafts(opts Options) *RadioCrafts {
	return &RadioCrafts{timeout: opts.fragmentTimeout(), threshold: opts.resetThreshold()}
}

func (r *RadioCrafts) Name() string { return "radiocrafts" }

func (r *RadioCrafts) Init(io.Writer) error { return nil }

// Reset enters and leaves configuration mode, which restarts the receiver.
func (r *RadioCrafts) Reset(w io.Writer) error {
	if _, err := w.Write([]byte{0x00}); err != nil {
		return err
	}
	_, err := w.Write([]byte{'X'})
	return err
}

func (r *RadioCrafts) ResetThreshold() int { return r.threshold }

func (r *RadioCrafts) ReadFrame(src Source) (Result, error) {
	var res Result
	for len(res.Discarded) < maxDiscardBatch {
		l, err := src.Next(firstTimeout(res, r.timeout))
		if errors.Is(err, ErrTimeout) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		c, err := src.Peek(r.timeout)
		if err != nil || c != cFieldSendNoReply || l < minLField {
			res.Discarded = append(res.Discarded, l)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}
		frame := make([]byte, int(l)+2)
		frame[0] = l
		n, err := src.ReadFull(frame[1:], r.timeout)
		if err != nil {
			res.Discarded = append(res.Discarded, frame[:n+1]...)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}
		rssi := frame[len(frame)-1]
		res.Frame = &RawFrame{
			Payload:  frame[:len(frame)-1],
			RSSI:     -int(rssi) / 2,
			HasRSSI:  true,
			Received: time.Now(),
		}
		return res, nil
	}
	return res, nil
}
