package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
)

// Encoding is the text encoding of the signature header.
type Encoding string

const (
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"

	DefaultSignatureHeader = "X-Signature"
)

// Verifier checks the HMAC-SHA256 signature of a webhook body.
type Verifier struct {
	secret   []byte
	header   string
	encoding Encoding
	bypass   bool
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithHeader sets the header that carries the signature.
func WithHeader(name string) VerifierOption {
	return func(v *Verifier) {
		if name != "" {
			v.header = name
		}
	}
}

// WithEncoding sets the signature encoding the sender is contracted to use.
func WithEncoding(enc Encoding) VerifierOption {
	return func(v *Verifier) { v.encoding = enc }
}

// WithInsecureSkipVerification accepts unsigned deliveries. It has no effect when a
// secret is configured.
func WithInsecureSkipVerification(skip bool) VerifierOption {
	return func(v *Verifier) { v.bypass = skip }
}

// NewVerifier creates a Verifier for secret. An empty secret rejects every delivery
// unless WithInsecureSkipVerification(true) is also given.
func NewVerifier(secret string, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		secret:   []byte(secret),
		header:   DefaultSignatureHeader,
		encoding: EncodingHex,
	}
	for _, o := range opts {
		o(v)
	}
	v.bypass = v.bypass && len(v.secret) == 0
	return v
}

// Header returns the signature header name.
func (v *Verifier) Header() string { return v.header }

// Bypassed reports whether signatures are not being checked.
func (v *Verifier) Bypassed() bool { return v.bypass }

// VerifyRequest checks the signature header against the raw body.
func (v *Verifier) VerifyRequest(body []byte, h http.Header) error {
	return v.Verify(body, h.Get(v.header))
}

// Verify checks signature against body. Every failure wraps ErrInvalidSignature.
func (v *Verifier) Verify(body []byte, signature string) error {
	if v.bypass {
		return nil
	}
	if len(v.secret) == 0 {
		return invalid("no webhook secret configured")
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return invalid("missing signature")
	}

	provided, err := decode(signature, v.encoding)
	if err != nil {
		return invalid(fmt.Sprintf("signature is not %s", v.encoding))
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return invalid("signature mismatch")
	}
	return nil
}

func decode(signature string, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingHex:
		return hex.DecodeString(signature)
	case EncodingBase64:
		return base64.StdEncoding.Strict().DecodeString(signature)
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

func invalid(reason string) error {
	return fmt.Errorf("%s: %w", reason, domainErrors.ErrInvalidSignature)
}
