package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials required for HMAC-authenticated requests
// against the MAX exchange REST API.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret
}

// Headers returns the HTTP headers for an authenticated MAX API request.
// The payload is the base64-encoded JSON of the request parameters (which
// must include the path and a millisecond nonce); the signature is
// HMAC-SHA256(secret, payload) encoded as hex.
//
// Returned header keys:
//   - X-MAX-ACCESSKEY
//   - X-MAX-PAYLOAD
//   - X-MAX-SIGNATURE
func (h *HMACAuth) Headers(path string, params map[string]any) (map[string]string, error) {
	return h.headersAt(path, params, time.Now().UnixMilli())
}

// HeadersAt is like Headers but lets the caller supply the millisecond nonce
// (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(path string, params map[string]any, nonceMillis int64) (map[string]string, error) {
	return h.headersAt(path, params, nonceMillis)
}

func (h *HMACAuth) headersAt(path string, params map[string]any, nonceMillis int64) (map[string]string, error) {
	body := make(map[string]any, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["path"] = path
	body["nonce"] = nonceMillis

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal auth payload: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(raw)

	return map[string]string{
		"X-MAX-ACCESSKEY": h.Key,
		"X-MAX-PAYLOAD":   payload,
		"X-MAX-SIGNATURE": hmacSHA256Hex([]byte(h.Secret), payload),
	}, nil
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result as a lowercase hex string.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Nonce returns the current time as a millisecond nonce string.
func Nonce() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
