package rembg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"regexp"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/(png|jpeg|webp);base64,`)

// StripDataURI returns the raw image bytes. A data URI prefix is removed and the
// payload base64-decoded; anything else is returned unchanged.
func StripDataURI(data []byte) ([]byte, error) {
	loc := dataURIPrefix.FindIndex(data)
	if loc == nil {
		return data, nil
	}

	payload := bytes.TrimSpace(data[loc[1]:])
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(raw, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return raw[:n], nil
}
