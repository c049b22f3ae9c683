package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// NowFunc is swapped in tests.
	NowFunc = time.Now
)

// Sign returns a Paddle-Signature header value for body at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "ts=" + unix + ";h1=" + hex.EncodeToString(mac(secret, unix, body))
}

func mac(secret, ts string, body []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte(":"))
	h.Write(body)
	return h.Sum(nil)
}

// VerifySignature checks a Paddle-Signature header `ts=<unix>;h1=<hex hmac>` against body.
// The timestamp must be within tolerance of now. Any of several h1 values may match.
func VerifySignature(secret, header string, body []byte, tolerance time.Duration) error {
	if secret == "" {
		return errors.Wrap(ErrInvalidSignature, "no webhook secret configured")
	}

	var ts string
	var sigs [][]byte
	for _, part := range strings.Split(header, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "h1":
			if sig, err := hex.DecodeString(kv[1]); err == nil {
				sigs = append(sigs, sig)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return errors.Wrap(ErrInvalidSignature, "malformed header")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, "malformed timestamp")
	}
	if age := NowFunc().Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
		return errors.Wrap(ErrInvalidSignature, "timestamp outside tolerance")
	}

	expected := mac(secret, ts, body)
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}
