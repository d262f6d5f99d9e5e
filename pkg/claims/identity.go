package claims

import "time"

// Identity wraps an already-authenticated principal into a PE claim set.
// Pure: no side effects, no network calls. Authentication itself happens
// upstream; this only records its outcome at chain-build time.
func Identity(userID string, level AuthLevel, issuedAt time.Time) Set {
	return NewPE(PEClaims{
		UserID:    userID,
		AuthLevel: level,
		IssuedAt:  issuedAt.Unix(),
	})
}
