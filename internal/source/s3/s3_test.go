package s3

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSha256HexOfEmptyStringMatchesKnownConstant(t *testing.T) {
	// The SHA-256 hash of the empty string is a well-known constant, used
	// here as the payload hash for GET/HEAD requests with no body.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sha256Hex(""))
}

func TestSignatureKeyIsDeterministic(t *testing.T) {
	k1 := signatureKey("secret", "20260101", "us-east-1", "s3")
	k2 := signatureKey("secret", "20260101", "us-east-1", "s3")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32) // HMAC-SHA256 output size
}

func TestSignatureKeyDiffersByDateRegionOrSecret(t *testing.T) {
	base := signatureKey("secret", "20260101", "us-east-1", "s3")
	assert.NotEqual(t, base, signatureKey("other-secret", "20260101", "us-east-1", "s3"))
	assert.NotEqual(t, base, signatureKey("secret", "20260102", "us-east-1", "s3"))
	assert.NotEqual(t, base, signatureKey("secret", "20260101", "us-west-2", "s3"))
}

func TestSignSetsAuthorizationAndDateHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://my-bucket.s3.amazonaws.com/key", nil)
	require.NoError(t, err)

	fixed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	sign(req, "AKIDEXAMPLE", "secretkey", &fixed)

	assert.Equal(t, "20260115T120000Z", req.Header.Get("X-Amz-Date"))
	assert.Equal(t, sha256Hex(""), req.Header.Get("X-Amz-Content-Sha256"))

	auth := req.Header.Get("Authorization")
	assert.Contains(t, auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260115/us-east-1/s3/aws4_request")
	assert.Contains(t, auth, "SignedHeaders=host;x-amz-content-sha256;x-amz-date")
	assert.Contains(t, auth, "Signature=")
}

func TestSignIsDeterministicForFixedTime(t *testing.T) {
	fixed := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	req1, _ := http.NewRequest(http.MethodGet, "https://b.s3.amazonaws.com/k", nil)
	sign(req1, "AKID", "secret", &fixed)
	req2, _ := http.NewRequest(http.MethodGet, "https://b.s3.amazonaws.com/k", nil)
	sign(req2, "AKID", "secret", &fixed)

	assert.Equal(t, req1.Header.Get("Authorization"), req2.Header.Get("Authorization"))
}
