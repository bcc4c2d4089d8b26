package rfb

import (
	"bytes"
	"testing"
)

func TestVNCAuthKeyBitReversal(t *testing.T) {
	got := vncAuthKey("pass")
	want := []byte{0x0E, 0x86, 0xCE, 0xCE, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("vncAuthKey(%q) = % X, want % X", "pass", got, want)
	}
}

func TestVNCAuthKeyTruncatesLongPasswords(t *testing.T) {
	short := vncAuthKey("password")       // exactly 8 bytes
	long := vncAuthKey("password12345")   // truncated to "password" before reversal
	if !bytes.Equal(short, long) {
		t.Fatalf("expected passwords longer than 8 bytes to truncate before bit reversal, got % X vs % X", short, long)
	}
}

func TestVerifyVNCAuthRoundTrip(t *testing.T) {
	challenge, err := newChallenge()
	if err != nil {
		t.Fatal(err)
	}
	response, err := vncAuthEncrypt("pass", challenge)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := verifyVNCAuth("pass", challenge, response)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected the correctly encrypted response to verify")
	}
}

func TestVerifyVNCAuthRejectsWrongPassword(t *testing.T) {
	challenge := make([]byte, challengeSize)
	response, err := vncAuthEncrypt("pass", challenge)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := verifyVNCAuth("wrong", challenge, response)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected verification against the wrong password to fail")
	}
}

func TestVerifyVNCAuthZeroChallengeExample(t *testing.T) {
	challenge := make([]byte, challengeSize) // 16 zero bytes, per the spec's worked example
	response, err := vncAuthEncrypt("pass", challenge)
	if err != nil {
		t.Fatal(err)
	}
	if len(response) != challengeSize {
		t.Fatalf("response length = %d, want %d", len(response), challengeSize)
	}
	// The two independent 8-byte DES-ECB blocks are computed under an
	// identical key from an identical (all-zero) plaintext block, so
	// they must be byte-identical to each other.
	if !bytes.Equal(response[:8], response[8:]) {
		t.Fatalf("expected both DES-ECB blocks of a zero challenge to match, got % X and % X", response[:8], response[8:])
	}
}
