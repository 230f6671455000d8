package moper

import (
	"crypto/rand"
	"fmt"
)

// accessCodeAlphabet omits 0, O, 1 and I so codes survive being read aloud or
// transcribed from paper.
const (
	accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	accessCodeLength   = 8
)

// NewAccessCode generates the capability token that lets the record's subject
// view and sign conformidad without an account.
func NewAccessCode() (string, error) {
	buf := make([]byte, accessCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("moper: generate access code: %w", err)
	}
	code := make([]byte, accessCodeLength)
	for i, b := range buf {
		code[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(code), nil
}
