package kas

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/container"
	"github.com/arkavo-org/trustchain/pkg/crypto"
)

func testContainer(t *testing.T, recipient *ecdsa.PrivateKey) *container.Container {
	t.Helper()
	body, err := claims.Identity("alice", claims.AuthLevelBiometric, time.Unix(1700000000, 0)).Encode()
	if err != nil {
		t.Fatalf("failed to encode claims: %v", err)
	}
	c, err := container.Create(container.CreateConfig{
		Locator:            "kas.example.com",
		RecipientPublicKey: &recipient.PublicKey,
	}, body, []byte("payload"), container.PayloadOpaque)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return c
}

func TestLocalProviderDerivesWorkingKey(t *testing.T) {
	key, err := crypto.GenerateKeyPair(crypto.CurveP256)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	c := testContainer(t, key)

	p := NewLocalProvider(key)
	layerKey, err := p.LayerKey(context.Background(), c)
	if err != nil {
		t.Fatalf("LayerKey failed: %v", err)
	}

	plaintext, err := container.Open(c, layerKey)
	if err != nil {
		t.Fatalf("Open with derived key failed: %v", err)
	}
	if !bytes.Equal(plaintext, []byte("payload")) {
		t.Errorf("plaintext mismatch: got %q", plaintext)
	}
}

func TestLocalProviderRequiresKey(t *testing.T) {
	key, _ := crypto.GenerateKeyPair(crypto.CurveP256)
	c := testContainer(t, key)

	p := &LocalProvider{}
	if _, err := p.LayerKey(context.Background(), c); !errors.Is(err, ErrMissingPrivateKey) {
		t.Errorf("expected ErrMissingPrivateKey, got %v", err)
	}
}

func TestRewrapRoundTrip(t *testing.T) {
	authority, err := crypto.GenerateKeyPair(crypto.CurveP256)
	if err != nil {
		t.Fatalf("failed to generate authority key: %v", err)
	}
	c := testContainer(t, authority)

	srv := httptest.NewServer(NewHandler(authority, nil))
	defer srv.Close()

	client, err := NewRewrapClient(srv.URL)
	if err != nil {
		t.Fatalf("NewRewrapClient failed: %v", err)
	}

	layerKey, err := client.LayerKey(context.Background(), c)
	if err != nil {
		t.Fatalf("rewrap failed: %v", err)
	}

	// The rewrapped key must equal the locally derivable one: it opens the
	// container.
	plaintext, err := container.Open(c, layerKey)
	if err != nil {
		t.Fatalf("Open with rewrapped key failed: %v", err)
	}
	if !bytes.Equal(plaintext, []byte("payload")) {
		t.Errorf("plaintext mismatch: got %q", plaintext)
	}
}

func TestRewrapPolicyDenial(t *testing.T) {
	authority, _ := crypto.GenerateKeyPair(crypto.CurveP256)
	c := testContainer(t, authority)

	deny := func(s claims.Set) bool {
		return s.PE != nil && s.PE.UserID != "alice"
	}
	srv := httptest.NewServer(NewHandler(authority, deny))
	defer srv.Close()

	client, err := NewRewrapClient(srv.URL)
	if err != nil {
		t.Fatalf("NewRewrapClient failed: %v", err)
	}

	if _, err := client.LayerKey(context.Background(), c); !errors.Is(err, ErrRewrapDenied) {
		t.Errorf("expected ErrRewrapDenied, got %v", err)
	}
}

func TestRewrapRejectsWrongCurve(t *testing.T) {
	authority, _ := crypto.GenerateKeyPair(crypto.CurveP256)
	other, _ := crypto.GenerateKeyPair(crypto.CurveP384)

	body, _ := claims.Identity("alice", claims.AuthLevelMFA, time.Now()).Encode()
	c, err := container.Create(container.CreateConfig{
		Locator:            "kas.example.com",
		RecipientPublicKey: &other.PublicKey,
		Curve:              crypto.CurveP384,
	}, body, []byte("payload"), container.PayloadOpaque)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	srv := httptest.NewServer(NewHandler(authority, nil))
	defer srv.Close()

	client, _ := NewRewrapClient(srv.URL)
	if _, err := client.LayerKey(context.Background(), c); !errors.Is(err, ErrRewrapFailed) {
		t.Errorf("expected ErrRewrapFailed, got %v", err)
	}
}

func TestRewrapHandlerRejectsNonPost(t *testing.T) {
	authority, _ := crypto.GenerateKeyPair(crypto.CurveP256)
	srv := httptest.NewServer(NewHandler(authority, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestRewrapHandlerRejectsGarbage(t *testing.T) {
	authority, _ := crypto.GenerateKeyPair(crypto.CurveP256)
	srv := httptest.NewServer(NewHandler(authority, nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestRewrapClientContextCancellation(t *testing.T) {
	authority, _ := crypto.GenerateKeyPair(crypto.CurveP256)
	c := testContainer(t, authority)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server starts its background read and can
		// observe the client disconnect; otherwise the request context is
		// never cancelled and Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client, _ := NewRewrapClient(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.LayerKey(ctx, c); !errors.Is(err, ErrRewrapFailed) {
		t.Errorf("expected ErrRewrapFailed on cancellation, got %v", err)
	}
}
