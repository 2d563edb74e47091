package dongle

import (
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/d21d3q/wmbusd/internal/wire"
)

const (
	imstStartOfFrame = 0xA5

	imstControlCRC       = 0x80
	imstControlRSSI      = 0x40
	imstControlTimestamp = 0x20
	imstEndpointMask     = 0x0F

	imstEndpointDeviceMgmt = 0x01
	imstEndpointRadioLink  = 0x02
	imstMsgResetReq        = 0x07
	imstMsgWMBusInd        = 0x03
)

var imstReset = []byte{imstStartOfFrame, imstEndpointDeviceMgmt, imstMsgResetReq, 0x00}

// IMST reads iM871A style HCI messages:
//
//	A5 CTRL ID LEN PAYLOAD [TIMESTAMP(4)] [RSSI] [CRC(2)]
//
// The optional fields are announced by CTRL; the CRC covers CTRL through
// RSSI. Radio link indications carry the frame from its C field on.
type IMST struct {
	timeout   time.Duration
	threshold int
}

func NewIMST(opts Options) *IMST {
	return &IMST{timeout: opts.fragmentTimeout(), threshold: opts.resetThreshold()}
}

func (m *IMST) Name() string { return "imst" }

func (m *IMST) Init(io.Writer) error { return nil }

func (m *IMST) Reset(w io.Writer) error {
	_, err := w.Write(imstReset)
	return err
}

func (m *IMST) ResetThreshold() int { return m.threshold }

func (m *IMST) ReadFrame(src Source) (Result, error) {
	var res Result
	for len(res.Discarded) < maxDiscardBatch {
		sof, err := src.Next(firstTimeout(res, m.timeout))
		if errors.Is(err, ErrTimeout) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		if sof != imstStartOfFrame {
			res.Discarded = append(res.Discarded, sof)
			continue
		}

		hdr := make([]byte, 3)
		n, err := src.ReadFull(hdr, m.timeout)
		if err != nil {
			res.Discarded = append(append(res.Discarded, sof), hdr[:n]...)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}
		ctrl, id, length := hdr[0], hdr[1], int(hdr[2])
		extra := 0
		if ctrl&imstControlTimestamp != 0 {
			extra += 4
		}
		if ctrl&imstControlRSSI != 0 {
			extra++
		}
		if ctrl&imstControlCRC != 0 {
			extra += 2
		}
		body := make([]byte, length+extra)
		n, err = src.ReadFull(body, m.timeout)
		msg := append(hdr, body[:n]...)
		if err != nil {
			res.Discarded = append(append(res.Discarded, sof), msg...)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}
		if ctrl&imstControlCRC != 0 {
			covered := msg[:len(msg)-2]
			if wire.CRC16Genibus(covered) != binary.LittleEndian.Uint16(msg[len(msg)-2:]) {
				res.Discarded = append(append(res.Discarded, sof), msg...)
				continue
			}
		}
		if ctrl&imstEndpointMask != imstEndpointRadioLink || id != imstMsgWMBusInd || length == 0 {
			// status and command responses
			continue
		}

		frame := make([]byte, 0, length+1)
		frame = append(frame, byte(length))
		frame = append(frame, body[:length]...)
		raw := RawFrame{Payload: frame, Received: time.Now()}
		if ctrl&imstControlRSSI != 0 {
			i := length
			if ctrl&imstControlTimestamp != 0 {
				i += 4
			}
			raw.RSSI, raw.HasRSSI = cc11xxRSSI(body[i]), true
		}
		res.Frame = &raw
		return res, nil
	}
	return res, nil
}
