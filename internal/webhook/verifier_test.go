package webhook

import (
	"net/http"
	"testing"

	domainErrors "github.com/cassiomorais/paysecure/internal/domain/errors"
	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func TestVerifier_RoundTrip(t *testing.T) {
	body := []byte(`{"event":"payment_success","data":{"paymentId":"pay_1","orderId":"o1"}}`)

	for _, enc := range []Encoding{EncodingHex, EncodingBase64} {
		t.Run(string(enc), func(t *testing.T) {
			v := NewVerifier(testSecret, WithEncoding(enc))
			assert.NoError(t, v.Verify(body, Sign(testSecret, body, enc)))
		})
	}
}

func TestVerifier_TamperedBody(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{"event":"payment_success","data":{"paymentId":"pay_1","orderId":"o1"}}`)
	sig := Sign(testSecret, body, EncodingHex)

	tampered := []byte(`{"event":"payment_success","data":{"paymentId":"pay_2","orderId":"o1"}}`)
	err := v.Verify(tampered, sig)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidSignature)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthorized)
}

func TestVerifier_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	body := []byte(`{}`)

	assert.ErrorIs(t, v.Verify(body, Sign("other", body, EncodingHex)), domainErrors.ErrInvalidSignature)
}

func TestVerifier_EncodingMismatchIsInvalid(t *testing.T) {
	body := []byte(`{"event":"payment_failed"}`)

	hexVerifier := NewVerifier(testSecret, WithEncoding(EncodingHex))
	assert.ErrorIs(t, hexVerifier.Verify(body, Sign(testSecret, body, EncodingBase64)), domainErrors.ErrInvalidSignature)

	b64Verifier := NewVerifier(testSecret, WithEncoding(EncodingBase64))
	assert.ErrorIs(t, b64Verifier.Verify(body, Sign(testSecret, body, EncodingHex)), domainErrors.ErrInvalidSignature)
}

func TestVerifier_MissingSignature(t *testing.T) {
	v := NewVerifier(testSecret)
	assert.ErrorIs(t, v.Verify([]byte(`{}`), ""), domainErrors.ErrInvalidSignature)
}

func TestVerifier_EmptySecretRejects(t *testing.T) {
	v := NewVerifier("")
	assert.False(t, v.Bypassed())
	assert.ErrorIs(t, v.Verify([]byte(`{}`), ""), domainErrors.ErrInvalidSignature)
}

func TestVerifier_BypassRequiresExplicitFlagAndNoSecret(t *testing.T) {
	bypass := NewVerifier("", WithInsecureSkipVerification(true))
	assert.True(t, bypass.Bypassed())
	assert.NoError(t, bypass.Verify([]byte(`{}`), ""))

	// a configured secret always wins over the flag
	withSecret := NewVerifier(testSecret, WithInsecureSkipVerification(true))
	assert.False(t, withSecret.Bypassed())
	assert.ErrorIs(t, withSecret.Verify([]byte(`{}`), ""), domainErrors.ErrInvalidSignature)
}

func TestVerifier_VerifyRequestUsesConfiguredHeader(t *testing.T) {
	body := []byte(`{"event":"payment_success"}`)
	v := NewVerifier(testSecret, WithHeader("X-Wix-Signature"), WithEncoding(EncodingBase64))

	h := http.Header{}
	h.Set("X-Wix-Signature", Sign(testSecret, body, EncodingBase64))
	assert.NoError(t, v.VerifyRequest(body, h))

	h = http.Header{}
	h.Set(DefaultSignatureHeader, Sign(testSecret, body, EncodingBase64))
	assert.Error(t, v.VerifyRequest(body, h))
}
