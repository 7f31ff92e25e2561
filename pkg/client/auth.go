package client

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Header names of OKX request authentication
const (
	HeaderAccessKey        = "OK-ACCESS-KEY"
	HeaderAccessSign       = "OK-ACCESS-SIGN"
	HeaderAccessTimestamp  = "OK-ACCESS-TIMESTAMP"
	HeaderAccessPassphrase = "OK-ACCESS-PASSPHRASE"
)

// timestampLayout is ISO-8601 in UTC with millisecond precision
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Credentials authenticate requests against the OKX Web3 API
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// Signer produces the OK-ACCESS-* headers for a request
type Signer struct {
	creds Credentials
	now   func() time.Time
}

// NewSigner creates a signer using the wall clock
func NewSigner(creds Credentials) *Signer {
	return &Signer{creds: creds, now: time.Now}
}

// Sign returns the signature of timestamp + METHOD + path + query + body, HMAC-SHA256 and Base64 encoded
func (s *Signer) Sign(timestamp, method, path, query, body string) string {
	mac := hmac.New(sha256.New, []byte(s.creds.SecretKey))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + path + query + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Headers returns a fresh set of authentication headers. query includes the leading "?" when non-empty.
func (s *Signer) Headers(method, path, query string) http.Header {
	timestamp := s.now().UTC().Format(timestampLayout)

	h := make(http.Header)
	h.Set(HeaderAccessKey, s.creds.APIKey)
	h.Set(HeaderAccessSign, s.Sign(timestamp, method, path, query, ""))
	h.Set(HeaderAccessTimestamp, timestamp)
	h.Set(HeaderAccessPassphrase, s.creds.Passphrase)
	h.Set("Content-Type", "application/json")
	return h
}

// Param is one query-string entry
type Param struct {
	Key   string
	Value string
}

// BuildQueryString encodes params in the given order, skipping empty values.
// It returns "" or a string starting with "?".
func BuildQueryString(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Value == "" {
			continue
		}
		parts = append(parts, escapeComponent(p.Key)+"="+escapeComponent(p.Value))
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

// escapeComponent percent-encodes a query component with spaces as %20
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
