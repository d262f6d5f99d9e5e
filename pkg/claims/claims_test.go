package claims

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePE(t *testing.T) {
	set := Identity("alice", AuthLevelBiometric, time.Unix(1700000000, 0))

	data, err := set.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, KindPE, decoded.Kind)
	require.NotNil(t, decoded.PE)
	assert.Equal(t, "alice", decoded.PE.UserID)
	assert.Equal(t, AuthLevelBiometric, decoded.PE.AuthLevel)
	assert.Equal(t, int64(1700000000), decoded.PE.IssuedAt)
	assert.Nil(t, decoded.NPE)
	assert.Nil(t, decoded.Authorization)
}

func TestEncodeDecodeNPE(t *testing.T) {
	set := NewNPE(NPEClaims{
		Platform:        "iOS",
		DeviceID:        "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
		AppVersion:      "1.0.0",
		SecurityPosture: PostureSecure,
	})

	data, err := set.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, KindNPE, decoded.Kind)
	require.NotNil(t, decoded.NPE)
	assert.Equal(t, set.NPE.DeviceID, decoded.NPE.DeviceID)
	assert.Equal(t, PostureSecure, decoded.NPE.SecurityPosture)
}

func TestEncodeDecodeAuthorization(t *testing.T) {
	set := NewAuthorization(AuthorizationClaims{
		Role:      "admin",
		Audience:  "api.example.com",
		ExpiresAt: 1700003600,
	})

	data, err := set.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, KindAuthorization, decoded.Kind)
	require.NotNil(t, decoded.Authorization)
	assert.Equal(t, "admin", decoded.Authorization.Role)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	set := Identity("alice", AuthLevelMFA, time.Now())
	set.Kind = Kind(99)

	_, err := set.Encode()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("definitely not cbor claims"))
	assert.Error(t, err)

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestAuthLevelOrdering(t *testing.T) {
	assert.True(t, AuthLevelBiometric.Meets(AuthLevelPassword))
	assert.True(t, AuthLevelBiometric.Meets(AuthLevelBiometric))
	assert.True(t, AuthLevelMFA.Meets(AuthLevelPassword))
	assert.False(t, AuthLevelPassword.Meets(AuthLevelMFA))
	assert.False(t, AuthLevel("made-up").Meets(AuthLevelPassword))
}

func TestPostureString(t *testing.T) {
	assert.Equal(t, "secure", PostureSecure.String())
	assert.Equal(t, "compromised", PostureCompromised.String())
	assert.Equal(t, "debug-attached", PostureDebugAttached.String())
	assert.Equal(t, "unknown", PostureUnknown.String())
	assert.Equal(t, "unknown", SecurityPosture(200).String())
}
