// Package signing authenticates upload completion callbacks with an HMAC over
// the request timestamp and body.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	TimestampHeader = "X-Quill-Timestamp"
	SignatureHeader = "X-Quill-Signature"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSigner creates a Signer. Signatures older or newer than tolerance are
// rejected; a zero tolerance disables the check.
func NewSigner(secret []byte, tolerance time.Duration) *Signer {
	return &Signer{secret: secret, tolerance: tolerance, now: time.Now}
}

// Sign returns the hex signature of body sent at unix time ts.
func (s *Signer) Sign(body []byte, ts int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers returns the header values for a request sent now.
func (s *Signer) Headers(body []byte) (timestamp, signature string) {
	ts := s.now().Unix()
	return strconv.FormatInt(ts, 10), s.Sign(body, ts)
}

// Validate compares signature with the expected one for body and timestamp.
func (s *Signer) Validate(body []byte, timestamp, signature string) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if s.tolerance > 0 {
		skew := s.now().Sub(time.Unix(ts, 0))
		if skew > s.tolerance || skew < -s.tolerance {
			return false
		}
	}
	expected := s.Sign(body, ts)
	// hmac.Equal compares in constant time.
	return hmac.Equal([]byte(expected), []byte(signature))
}
