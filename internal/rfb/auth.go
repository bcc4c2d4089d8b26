package rfb

import (
	"crypto/des"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// challengeSize is the length in bytes of a VNC authentication
// challenge and its encrypted response. RFC 6143 §7.2.2.
const challengeSize = 16

// newChallenge returns 16 cryptographically random bytes.
func newChallenge() ([]byte, error) {
	buf := make([]byte, challengeSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("rfb: generating VNC auth challenge: %w", err)
	}
	return buf, nil
}

// vncAuthKey derives the 8-byte DES key from a password: truncate (or
// zero-pad) to 8 bytes, then reverse the bit order of each byte. The
// bit reversal is an undocumented historical VNC quirk that every
// interoperable client and server preserves.
func vncAuthKey(password string) []byte {
	key := make([]byte, 8)
	copy(key, password) // truncates if longer than 8, zero-pads if shorter
	for i, b := range key {
		b = (b&0x55)<<1 | (b&0xAA)>>1 // swap adjacent bits
		b = (b&0x33)<<2 | (b&0xCC)>>2 // swap adjacent pairs
		b = (b&0x0F)<<4 | (b&0xF0)>>4 // swap the two halves
		key[i] = b
	}
	return key
}

// vncAuthEncrypt DES-ECB-encrypts a 16-byte challenge under the key
// derived from password, two independent 8-byte blocks.
func vncAuthEncrypt(password string, challenge []byte) ([]byte, error) {
	if len(challenge) != challengeSize {
		return nil, fmt.Errorf("rfb: challenge must be %d bytes, got %d", challengeSize, len(challenge))
	}
	block, err := des.NewCipher(vncAuthKey(password))
	if err != nil {
		return nil, err
	}
	out := make([]byte, challengeSize)
	for i := 0; i < challengeSize; i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], challenge[i:i+block.BlockSize()])
	}
	return out, nil
}

// verifyVNCAuth recomputes the expected ciphertext for challenge under
// password and compares it against the client's response in constant
// time.
func verifyVNCAuth(password string, challenge, response []byte) (bool, error) {
	expected, err := vncAuthEncrypt(password, challenge)
	if err != nil {
		return false, err
	}
	if len(response) != len(expected) {
		return false, nil
	}
	return subtle.ConstantTimeCompare(expected, response) == 1, nil
}
