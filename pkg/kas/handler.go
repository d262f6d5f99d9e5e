package kas

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/container"
	"github.com/arkavo-org/trustchain/pkg/crypto"
)

const maxRewrapRequestSize = 64 * 1024

// PolicyDecision decides whether a rewrap request's claims may receive the
// layer key. Returning false denies the request with 403.
type PolicyDecision func(claims.Set) bool

// Handler is the service side of the rewrap flow. It holds the authority's
// static EC private key, re-derives the layer key from the request's
// ephemeral public key, and returns it wrapped with the client's RSA key.
type Handler struct {
	privateKey *ecdsa.PrivateKey
	decide     PolicyDecision
	log        *slog.Logger
}

// NewHandler creates a rewrap handler. A nil decision grants every
// structurally valid request.
func NewHandler(privateKey *ecdsa.PrivateKey, decide PolicyDecision) *Handler {
	return &Handler{privateKey: privateKey, decide: decide, log: slog.Default()}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rewrapRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRewrapRequestSize)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	key, status := h.rewrap(&req)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rewrapResponse{WrappedKey: key})
}

func (h *Handler) rewrap(req *rewrapRequest) (string, int) {
	switch req.Version {
	case container.FormatV1, container.FormatV2:
	default:
		return "", http.StatusBadRequest
	}

	curve, err := crypto.CurveFor(crypto.CurveID(req.Curve))
	if err != nil {
		return "", http.StatusBadRequest
	}
	if h.privateKey.Curve != curve {
		return "", http.StatusBadRequest
	}

	ephemeralBytes, err := base64.StdEncoding.DecodeString(req.EphemeralKey)
	if err != nil {
		return "", http.StatusBadRequest
	}
	ephemeralPub, err := crypto.UnmarshalPublicKey(curve, ephemeralBytes)
	if err != nil {
		return "", http.StatusBadRequest
	}

	policyBytes, err := base64.StdEncoding.DecodeString(req.Policy)
	if err != nil {
		return "", http.StatusBadRequest
	}
	claimSet, err := claims.Decode(policyBytes)
	if err != nil {
		h.log.Warn("rewrap request with undecodable policy", "error", err)
		return "", http.StatusBadRequest
	}

	if h.decide != nil && !h.decide(claimSet) {
		h.log.Warn("rewrap denied by policy", "kind", claimSet.Kind.String())
		return "", http.StatusForbidden
	}

	clientKeyDER, err := base64.StdEncoding.DecodeString(req.ClientKey)
	if err != nil {
		return "", http.StatusBadRequest
	}
	clientKeyAny, err := x509.ParsePKIXPublicKey(clientKeyDER)
	if err != nil {
		return "", http.StatusBadRequest
	}
	clientKey, ok := clientKeyAny.(*rsa.PublicKey)
	if !ok {
		return "", http.StatusBadRequest
	}

	sharedSecret, err := crypto.ECDH(h.privateKey, ephemeralPub)
	if err != nil {
		return "", http.StatusBadRequest
	}
	layerKey, err := crypto.DeriveKey(sharedSecret, container.FormatSalt(req.Version), nil, crypto.AESKeySize)
	crypto.Zeroize(sharedSecret)
	if err != nil {
		return "", http.StatusInternalServerError
	}

	wrapped, err := crypto.WrapKeyRSA(layerKey, clientKey)
	crypto.Zeroize(layerKey)
	if err != nil {
		return "", http.StatusBadRequest
	}

	return base64.StdEncoding.EncodeToString(wrapped), http.StatusOK
}
