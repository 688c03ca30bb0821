package store

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// SaleCursor marks the position of the last sale on a page. The encoded form
// is opaque to clients.
type SaleCursor struct {
	SortValue string
	ID        string
}

func EncodeSaleCursor(c SaleCursor) string {
	raw := c.SortValue + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeSaleCursor(token string) (SaleCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return SaleCursor{}, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	idx := strings.LastIndexByte(string(raw), '|')
	if idx < 0 {
		return SaleCursor{}, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}
	return SaleCursor{SortValue: string(raw[:idx]), ID: string(raw[idx+1:])}, nil
}
