package storage

import "math/rand"

const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	// attempts before CreateRoom gives up allocating a unique code
	maxCodeAttempts = 5
)

// newRoomCode returns a short uppercase join token. Ambiguous symbols
// (0/O, 1/I) are excluded since codes are meant to be read aloud.
func newRoomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
