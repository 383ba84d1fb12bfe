package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

const (
	// tokenByteLen is two concatenated 128-bit random values.
	tokenByteLen = 32
	otpDigits    = 6
)

var otpSpace = big.NewInt(1_000_000)

// HashSecret returns the hex BLAKE2b-256 digest of a delivery secret.
// The digest is deterministic so storage can be queried by it. No per-secret
// salt: tokens carry 256 bits of entropy on their own, and the low-entropy
// OTP path is protected by order scoping, expiry, single use, and rate
// limiting rather than by the hash.
func HashSecret(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// GenerateDeliveryToken mints the raw QR token: 32 random bytes, hex encoded.
func GenerateDeliveryToken() (string, error) {
	buf := make([]byte, tokenByteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateOTP mints a uniformly random 6-digit code, zero padded.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
