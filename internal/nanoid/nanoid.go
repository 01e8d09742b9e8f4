package nanoid

import "math/rand"

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is the filename id length used for uploaded objects.
const DefaultLength = 21

// New returns a random alphanumeric string of the given length. The ids are
// uniqueness tokens for storage and download filenames, not secrets, so a
// non-cryptographic source is sufficient.
func New(length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}
