// Package issuer implements the exchange that upgrades a client-built
// Intermediate container into an issuer-signed Terminal container, plus the
// header encoding used to present the resulting chain.
package issuer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arkavo-org/trustchain/pkg/container"
)

// AuthorizationScheme is the Authorization header scheme for presented
// chains.
const AuthorizationScheme = "NTDF"

const contentTypeOctetStream = "application/octet-stream"

var (
	// ErrExchange indicates a network or server failure during the
	// exchange. Retryable with backoff: the exchange is idempotent and a
	// failed attempt mutates no client state.
	ErrExchange = errors.New("issuer exchange failed")

	// ErrExchangeDenied indicates the issuer refused to authorize the
	// presented intermediate. Not retryable.
	ErrExchangeDenied = errors.New("issuer denied authorization")

	// ErrBadAuthorizationHeader indicates an unparseable presented chain.
	ErrBadAuthorizationHeader = errors.New("malformed authorization header")
)

const maxTerminalSize = 4 * 1024 * 1024

// Client exchanges Intermediate containers for Terminal ones.
type Client struct {
	// URL is the issuer's authorize endpoint.
	URL string

	// HTTPClient defaults to a client with a 15 second timeout.
	HTTPClient *http.Client
}

// NewClient creates an exchange client.
func NewClient(url string) *Client {
	return &Client{URL: url}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// Exchange posts the serialized Intermediate container and returns the
// issuer's Terminal container wrapping it. Holds no state across calls;
// callers may retry failed attempts safely.
func (c *Client) Exchange(ctx context.Context, intermediate *container.Container) (*container.Container, error) {
	body, err := intermediate.Encode()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentTypeOctetStream)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrExchangeDenied
	default:
		return nil, fmt.Errorf("%w: status %d", ErrExchange, resp.StatusCode)
	}

	terminalBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxTerminalSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrExchange, err)
	}

	terminal, err := container.Decode(terminalBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	return terminal, nil
}

// EncodeAuthorization formats a serialized Terminal container for the
// Authorization header.
func EncodeAuthorization(chainBytes []byte) string {
	return AuthorizationScheme + " " + base64.StdEncoding.EncodeToString(chainBytes)
}

// ParseAuthorization extracts the serialized chain from an Authorization
// header value.
func ParseAuthorization(header string) ([]byte, error) {
	scheme, value, found := strings.Cut(header, " ")
	if !found || scheme != AuthorizationScheme {
		return nil, ErrBadAuthorizationHeader
	}

	chainBytes, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAuthorizationHeader, err)
	}

	return chainBytes, nil
}
