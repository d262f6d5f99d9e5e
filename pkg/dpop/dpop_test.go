package dpop

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerator(t *testing.T) *Generator {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return NewGenerator(priv)
}

func testValidator(t *testing.T) *Validator {
	t.Helper()
	cache := NewReplayCache(DefaultSkewTolerance)
	t.Cleanup(func() { cache.Close() })
	return NewValidator(DefaultSkewTolerance, cache)
}

func TestProofRoundTrip(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://issuer.example.com/exchange")
	require.NoError(t, err)

	err = v.Validate(proof, http.MethodPost, "https://issuer.example.com/exchange")
	assert.NoError(t, err)
}

func TestProofStructure(t *testing.T) {
	g := testGenerator(t)

	proof, err := g.Generate(http.MethodGet, "https://api.example.com/resource")
	require.NoError(t, err)

	parts := strings.Split(proof, ".")
	require.Len(t, parts, 3)

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	var hdr map[string]any
	require.NoError(t, json.Unmarshal(headerBytes, &hdr))
	assert.Equal(t, "dpop+jwt", hdr["typ"])
	assert.Equal(t, "EdDSA", hdr["alg"])
	assert.NotNil(t, hdr["jwk"], "public key must be embedded")

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims Claims
	require.NoError(t, json.Unmarshal(payloadBytes, &claims))
	assert.NotEmpty(t, claims.Nonce)
	assert.Equal(t, http.MethodGet, claims.Method)
	assert.Equal(t, "https://api.example.com/resource", claims.URL)
	assert.InDelta(t, time.Now().Unix(), claims.IssuedAt, 5)
}

func TestFreshNoncePerProof(t *testing.T) {
	g := testGenerator(t)
	seen := map[string]bool{}

	for i := 0; i < 20; i++ {
		proof, err := g.Generate(http.MethodGet, "https://api.example.com/")
		require.NoError(t, err)
		payload, _ := base64.RawURLEncoding.DecodeString(strings.Split(proof, ".")[1])
		var c Claims
		require.NoError(t, json.Unmarshal(payload, &c))
		assert.False(t, seen[c.Nonce], "nonce reused")
		seen[c.Nonce] = true
	}
}

func TestMethodMismatchRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://api.example.com/exchange")
	require.NoError(t, err)

	err = v.Validate(proof, http.MethodGet, "https://api.example.com/exchange")
	requireProofKind(t, err, KindMethodMismatch)

	// Method comparison is case-sensitive.
	err = v.Validate(proof, "post", "https://api.example.com/exchange")
	requireProofKind(t, err, KindMethodMismatch)
}

func TestURLMismatchRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://api.example.com/exchange")
	require.NoError(t, err)

	err = v.Validate(proof, http.MethodPost, "https://api.example.com/other")
	requireProofKind(t, err, KindURLMismatch)
}

func TestURLNormalization(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	// Scheme and host casing and an explicit default port normalize away;
	// query and fragment are dropped.
	proof, err := g.Generate(http.MethodGet, "HTTPS://API.Example.COM:443/path?q=1#frag")
	require.NoError(t, err)

	err = v.Validate(proof, http.MethodGet, "https://api.example.com/path")
	assert.NoError(t, err)
}

func TestStaleProofRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	g.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	proof, err := g.Generate(http.MethodGet, "https://api.example.com/")
	require.NoError(t, err)

	err = v.Validate(proof, http.MethodGet, "https://api.example.com/")
	requireProofKind(t, err, KindStale)
}

func TestFutureProofRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	g.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	proof, err := g.Generate(http.MethodGet, "https://api.example.com/")
	require.NoError(t, err)

	err = v.Validate(proof, http.MethodGet, "https://api.example.com/")
	requireProofKind(t, err, KindStale)
}

func TestSkewToleranceAccepted(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	g.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	proof, err := g.Generate(http.MethodGet, "https://api.example.com/")
	require.NoError(t, err)

	assert.NoError(t, v.Validate(proof, http.MethodGet, "https://api.example.com/"))
}

func TestReplayRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://api.example.com/exchange")
	require.NoError(t, err)

	require.NoError(t, v.Validate(proof, http.MethodPost, "https://api.example.com/exchange"))

	err = v.Validate(proof, http.MethodPost, "https://api.example.com/exchange")
	requireProofKind(t, err, KindReplayed)
}

func TestConcurrentReplayOnlyOnePasses(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://api.example.com/exchange")
	require.NoError(t, err)

	const presenters = 16
	var ok int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < presenters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Validate(proof, http.MethodPost, "https://api.example.com/exchange") == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok, "exactly one presentation may pass")
}

func TestChainBinding(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	chain := []byte("serialized chain bytes")
	proof, err := g.Generate(http.MethodPost, "https://api.example.com/present",
		WithChainHash(chain))
	require.NoError(t, err)

	assert.NoError(t, v.ValidateBound(proof, http.MethodPost, "https://api.example.com/present", chain))
}

func TestChainBindingMismatchRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://api.example.com/present",
		WithChainHash([]byte("chain A")))
	require.NoError(t, err)

	err = v.ValidateBound(proof, http.MethodPost, "https://api.example.com/present", []byte("chain B"))
	requireProofKind(t, err, KindChainMismatch)
}

func TestChainMismatchDoesNotBurnNonce(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	chain := []byte("the real chain")
	proof, err := g.Generate(http.MethodPost, "https://api.example.com/present",
		WithChainHash(chain))
	require.NoError(t, err)

	err = v.ValidateBound(proof, http.MethodPost, "https://api.example.com/present", []byte("wrong chain"))
	requireProofKind(t, err, KindChainMismatch)

	// The failed binding check must not have recorded the nonce.
	assert.NoError(t, v.ValidateBound(proof, http.MethodPost, "https://api.example.com/present", chain))
}

func TestUnboundProofFailsBoundValidation(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodPost, "https://api.example.com/present")
	require.NoError(t, err)

	err = v.ValidateBound(proof, http.MethodPost, "https://api.example.com/present", []byte("chain"))
	requireProofKind(t, err, KindChainMismatch)
}

func TestTamperedSignatureRejected(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	proof, err := g.Generate(http.MethodGet, "https://api.example.com/")
	require.NoError(t, err)

	parts := strings.Split(proof, ".")
	payload, _ := base64.RawURLEncoding.DecodeString(parts[1])
	var c Claims
	require.NoError(t, json.Unmarshal(payload, &c))
	c.Method = http.MethodDelete
	altered, _ := json.Marshal(c)
	parts[1] = base64.RawURLEncoding.EncodeToString(altered)

	err = v.Validate(strings.Join(parts, "."), http.MethodDelete, "https://api.example.com/")
	requireProofKind(t, err, KindInvalidSignature)
}

func TestWrongAlgRejected(t *testing.T) {
	v := testValidator(t)

	hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"dpop+jwt","alg":"HS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	sig := base64.RawURLEncoding.EncodeToString(make([]byte, 64))

	err := v.Validate(hdr+"."+payload+"."+sig, http.MethodGet, "https://api.example.com/")
	requireProofKind(t, err, KindMalformed)
}

func TestWrongTypRejected(t *testing.T) {
	v := testValidator(t)

	hdr := base64.RawURLEncoding.EncodeToString([]byte(`{"typ":"JWT","alg":"EdDSA"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
	sig := base64.RawURLEncoding.EncodeToString(make([]byte, 64))

	err := v.Validate(hdr+"."+payload+"."+sig, http.MethodGet, "https://api.example.com/")
	requireProofKind(t, err, KindMalformed)
}

func TestMalformedProofsRejected(t *testing.T) {
	v := testValidator(t)

	for _, proof := range []string{
		"",
		"only-one-part",
		"two.parts",
		"..",
		"a.b.c.d",
		strings.Repeat("x", maxProofSize+1),
	} {
		err := v.Validate(proof, http.MethodGet, "https://api.example.com/")
		requireProofKind(t, err, KindMalformed)
	}
}

func TestSignRequest(t *testing.T) {
	g := testGenerator(t)
	v := testValidator(t)

	req, err := http.NewRequest(http.MethodPost, "https://issuer.example.com/exchange", nil)
	require.NoError(t, err)

	require.NoError(t, g.SignRequest(req))

	proof := req.Header.Get("DPoP")
	require.NotEmpty(t, proof)
	assert.NoError(t, v.Validate(proof, http.MethodPost, "https://issuer.example.com/exchange"))
}

func TestReplayCacheExpiredNonceReusable(t *testing.T) {
	cache := NewReplayCache(50 * time.Millisecond)
	defer cache.Close()

	seen, err := cache.Seen("nonce-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = cache.Seen("nonce-1")
	require.NoError(t, err)
	assert.True(t, seen)

	time.Sleep(80 * time.Millisecond)

	// Past the horizon the nonce is stale anyway, so reuse is allowed.
	seen, err = cache.Seen("nonce-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestReplayCacheRejectsBadNonces(t *testing.T) {
	cache := NewReplayCache(time.Minute)
	defer cache.Close()

	_, err := cache.Seen("")
	assert.ErrorIs(t, err, ErrInvalidNonce)

	_, err = cache.Seen(strings.Repeat("n", maxNonceLength+1))
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestHashChainDeterministic(t *testing.T) {
	a := HashChain([]byte("chain"))
	b := HashChain([]byte("chain"))
	c := HashChain([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotContains(t, a, "=", "hash must be unpadded base64url")
}

func ExampleGenerator() {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	g := NewGenerator(priv)

	proof, _ := g.Generate(http.MethodPost, "https://issuer.example.com/exchange")
	fmt.Println(len(strings.Split(proof, ".")))
	// Output: 3
}

func requireProofKind(t *testing.T, err error, kind ProofErrorKind) {
	t.Helper()
	var perr *ProofError
	require.ErrorAs(t, err, &perr, "expected ProofError, got %v", err)
	assert.Equal(t, kind, perr.Kind)
}
