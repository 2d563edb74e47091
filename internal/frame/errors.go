package frame

import "errors"

var (
	ErrMalformedFrame            = errors.New("malformed frame")
	ErrUnsupportedCI             = errors.New("unsupported CI field")
	ErrManufacturerSpecific      = errors.New("manufacturer specific CI field")
	ErrUnsupportedEncryptionMode = errors.New("unsupported encryption mode")
	ErrNoCompactTemplate         = errors.New("no full frame cached for compact frame")
)
