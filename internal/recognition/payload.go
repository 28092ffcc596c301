package recognition

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload means the request image is not valid base64.
var ErrInvalidPayload = errors.New("invalid image payload")

// DecodePayload decodes a base64 image, optionally carrying a data-URL
// prefix ("data:image/jpeg;base64,") up to the first comma. Padded and
// unpadded encodings are both accepted.
func DecodePayload(payload string) ([]byte, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidPayload)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	return data, nil
}
