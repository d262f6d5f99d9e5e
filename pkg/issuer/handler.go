package issuer

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/container"
)

const maxIntermediateSize = 4 * 1024 * 1024

// Grant is the authorization the issuer confers on an accepted chain.
type Grant struct {
	Role     string
	Audience string
	TTL      time.Duration
}

// Handler is the issuer side of the exchange: POST /authorize with a
// serialized Intermediate container returns a Terminal container wrapping
// that same Intermediate under issuer-granted authorization claims.
type Handler struct {
	// Layer configures the terminal container (locator and recipient key
	// typically point at the issuer's key access service).
	Layer container.CreateConfig

	// Grant fills the terminal authorization claims.
	Grant Grant

	// Accept optionally screens the presented intermediate before
	// issuance. A nil Accept issues for any structurally valid container.
	Accept func(*container.Container) bool

	Log *slog.Logger
}

func (h *Handler) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	intermediateBytes, err := io.ReadAll(io.LimitReader(r.Body, maxIntermediateSize))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Structural check only: the issuer cannot open client layers, but it
	// refuses to wrap bytes that are not a well-formed container.
	intermediate, err := container.Decode(intermediateBytes)
	if err != nil {
		h.log().Warn("rejecting malformed intermediate", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if h.Accept != nil && !h.Accept(intermediate) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	grant := claims.NewAuthorization(claims.AuthorizationClaims{
		Role:      h.Grant.Role,
		Audience:  h.Grant.Audience,
		ExpiresAt: time.Now().Add(h.Grant.TTL).Unix(),
	})
	grantBody, err := grant.Encode()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	terminal, err := container.Create(h.Layer, grantBody, intermediateBytes, container.PayloadContainer)
	if err != nil {
		h.log().Error("failed to build terminal container", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	terminalBytes, err := terminal.Encode()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeOctetStream)
	w.Write(terminalBytes)
}
