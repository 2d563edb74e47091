package dongle

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/d21d3q/wmbusd/internal/wire"
)

const (
	culMaxLine = 1024

	formatAFirstBlock = 10
	formatABlock      = 16
	formatBFirstPart  = 128
)

var culModes = map[string]string{
	"T": "brt",
	"S": "brs",
	"C": "brc",
}

// CUL reads culfw based sticks. Received telegrams arrive as text lines,
// "b<hex>" for frame format A and "bY<hex>" for format B, with the block
// CRCs still in place and an optional trailing RSSI octet.
type CUL struct {
	timeout   time.Duration
	threshold int
	mode      string
}

func NewCUL(opts Options) (*CUL, error) {
	mode := strings.ToUpper(opts.Mode)
	if mode == "" {
		mode = "T"
	}
	if _, ok := culModes[mode]; !ok {
		return nil, fmt.Errorf("unsupported CUL mode %q", opts.Mode)
	}
	return &CUL{timeout: opts.fragmentTimeout(), threshold: opts.resetThreshold(), mode: mode}, nil
}

func (c *CUL) Name() string { return "cul" }

// Init enables RSSI reporting and selects the receive mode.
func (c *CUL) Init(w io.Writer) error {
	_, err := io.WriteString(w, "X21\r\n"+culModes[c.mode]+"\r\n")
	return err
}

func (c *CUL) Reset(w io.Writer) error { return c.Init(w) }

func (c *CUL) ResetThreshold() int { return c.threshold }

func (c *CUL) ReadFrame(src Source) (Result, error) {
	var res Result
	for len(res.Discarded) < maxDiscardBatch {
		line, err := c.readLine(src, firstTimeout(res, c.timeout))
		if errors.Is(err, ErrTimeout) && len(line) == 0 {
			return res, nil
		}
		if err != nil {
			res.Discarded = append(res.Discarded, line...)
			if errors.Is(err, ErrStreamClosed) {
				return res, err
			}
			continue
		}
		text := strings.TrimRight(string(line), "\r\n")
		if !strings.HasPrefix(text, "b") {
			res.Discarded = append(res.Discarded, line...)
			continue
		}
		formatB := strings.HasPrefix(text, "bY")
		digits := text[1:]
		if formatB {
			digits = text[2:]
		}
		data, err := hex.DecodeString(digits)
		if err != nil {
			res.Discarded = append(res.Discarded, line...)
			continue
		}
		raw, err := decodeCULFrame(data, formatB)
		if err != nil {
			res.Discarded = append(res.Discarded, line...)
			continue
		}
		raw.Received = time.Now()
		res.Frame = &raw
		return res, nil
	}
	return res, nil
}

// readLine reads up to and including '\n'. The first octet may wait for
// first; the rest use the fragment timeout.
func (c *CUL) readLine(src Source, first time.Duration) ([]byte, error) {
	var line []byte
	timeout := first
	for len(line) < culMaxLine {
		b, err := src.Next(timeout)
		if err != nil {
			return line, err
		}
		line = append(line, b)
		if b == '\n' {
			return line, nil
		}
		timeout = c.timeout
	}
	return line, fmt.Errorf("line exceeds %d octets", culMaxLine)
}

// decodeCULFrame verifies and strips the block CRCs. Octets beyond the
// frame are taken as the RSSI.
func decodeCULFrame(data []byte, formatB bool) (RawFrame, error) {
	if len(data) == 0 {
		return RawFrame{}, errors.New("empty CUL frame")
	}
	var (
		frame []byte
		used  int
		err   error
	)
	if formatB {
		frame, used, err = stripFormatB(data)
	} else {
		frame, used, err = stripFormatA(data)
	}
	if err != nil {
		return RawFrame{}, err
	}
	raw := RawFrame{Payload: frame}
	switch len(data) - used {
	case 0:
	case 1:
		raw.RSSI, raw.HasRSSI = cc11xxRSSI(data[used]), true
	default:
		return RawFrame{}, fmt.Errorf("%d unexpected trailing octets", len(data)-used)
	}
	return raw, nil
}

// stripFormatA checks a format A frame: a 10 octet first block and 16
// octet blocks after it, each followed by its CRC.
func stripFormatA(data []byte) ([]byte, int, error) {
	remaining := int(data[0]) + 1
	frame := make([]byte, 0, remaining)
	i := 0
	size := formatAFirstBlock
	for remaining > 0 {
		if size > remaining {
			size = remaining
		}
		if i+size+2 > len(data) {
			return nil, 0, fmt.Errorf("format A frame truncated at octet %d", i)
		}
		if !wire.CheckBlockCRC(data[i : i+size+2]) {
			return nil, 0, fmt.Errorf("format A block CRC mismatch at octet %d", i)
		}
		frame = append(frame, data[i:i+size]...)
		i += size + 2
		remaining -= size
		size = formatABlock
	}
	return frame, i, nil
}

// stripFormatB checks a format B frame, whose L field counts the CRCs: one
// CRC after at most 128 octets and one at the end.
func stripFormatB(data []byte) ([]byte, int, error) {
	total := int(data[0]) + 1
	if total < 12 || total > len(data) {
		return nil, 0, fmt.Errorf("format B length %d does not fit %d octets", total, len(data))
	}
	var frame []byte
	for start := 0; start < total; start += formatBFirstPart {
		end := start + formatBFirstPart
		if end > total {
			end = total
		}
		part := data[start:end]
		if len(part) < 3 {
			return nil, 0, errors.New("format B block too short")
		}
		body := part[:len(part)-2]
		if wire.CRC16(body) != binary.BigEndian.Uint16(part[len(part)-2:]) {
			return nil, 0, fmt.Errorf("format B block CRC mismatch at octet %d", start)
		}
		frame = append(frame, body...)
	}
	frame[0] = byte(len(frame) - 1)
	return frame, total, nil
}
