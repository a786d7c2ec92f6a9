// Package testing holds helpers shared by package tests.
package testing

import "math/rand"

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString generates a random 10-symbol string, unique enough to name
// throwaway rooms and users in tests against a shared database.
func RandString() string {
	b := make([]byte, 10)
	for i := range b {
		b[i] = nameAlphabet[rand.Intn(len(nameAlphabet))]
	}
	return string(b)
}
