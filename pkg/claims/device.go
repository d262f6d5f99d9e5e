package claims

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/linuxtpm"
)

const (
	// DeviceIDSize is the device identifier size in bytes (256 bits).
	DeviceIDSize = 32

	// deviceIDKeyPrefix namespaces the stored identifier per account.
	deviceIDKeyPrefix = "trustchain/device-id/"
)

// ErrAttestationUnavailable indicates no hardware-backed identifier could
// be produced. Non-fatal: the producer degrades to the random fallback and
// reports the condition on the operator channel only.
var ErrAttestationUnavailable = errors.New("hardware attestation unavailable")

// Attestor produces a device identifier. Hardware-backed implementations
// are preferred when the platform capability is present; the random
// fallback is always available.
type Attestor interface {
	// Available reports whether this attestor can run on the current host.
	Available() bool

	// DeviceID returns a stable 32-byte identifier.
	DeviceID() ([]byte, error)
}

// PlatformAttestor derives the identifier from the TPM 2.0 endorsement
// key. Hosts without a TPM report unavailable and fall through to
// RandomAttestor.
type PlatformAttestor struct {
	// DevicePath overrides the TPM resource manager node.
	DevicePath string

	// OpenTPM overrides the TPM connection, for tests against a simulator.
	OpenTPM func() (transport.TPMCloser, error)
}

func (a *PlatformAttestor) devicePath() string {
	if a.DevicePath != "" {
		return a.DevicePath
	}
	return "/dev/tpmrm0"
}

func (a *PlatformAttestor) open() (transport.TPMCloser, error) {
	if a.OpenTPM != nil {
		return a.OpenTPM()
	}
	return linuxtpm.Open(a.devicePath())
}

func (a *PlatformAttestor) Available() bool {
	if a.OpenTPM != nil {
		return true
	}
	_, err := os.Stat(a.devicePath())
	return err == nil
}

// DeviceID returns a digest of the endorsement key public area. The EK
// seed is burned into the TPM at manufacture, so the recreated primary is
// unique per device and stable across calls and reboots.
func (a *PlatformAttestor) DeviceID() ([]byte, error) {
	rwc, err := a.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}
	defer rwc.Close()

	rsp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.TPMRHEndorsement,
		InPublic:      tpm2.New2B(tpm2.RSAEKTemplate),
	}.Execute(rwc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}
	defer func() {
		flush := tpm2.FlushContext{FlushHandle: rsp.ObjectHandle}
		_, _ = flush.Execute(rwc)
	}()

	pub, err := rsp.OutPublic.Contents()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttestationUnavailable, err)
	}

	id := sha256.Sum256(tpm2.Marshal(pub))
	return id[:], nil
}

// RandomAttestor generates a cryptographically secure random identifier.
// Stability across calls comes from the secure store, not the attestor.
type RandomAttestor struct{}

func (RandomAttestor) Available() bool { return true }

func (RandomAttestor) DeviceID() ([]byte, error) {
	id := make([]byte, DeviceIDSize)
	if _, err := io.ReadFull(rand.Reader, id); err != nil {
		return nil, fmt.Errorf("failed to generate device id: %w", err)
	}
	return id, nil
}

// GetOrCreateDeviceID returns the persisted device identifier for an
// account, creating it on first use. Attestors are tried in order; the
// first available one wins, with RandomAttestor as the implicit fallback.
// PutIfAbsent resolves races between concurrent first-time callers, so two
// sequential or parallel calls always observe the identical value.
func GetOrCreateDeviceID(store SecureStore, account string, attestors ...Attestor) (string, error) {
	key := deviceIDKeyPrefix + account

	if existing, ok, err := store.Get(key); err != nil {
		return "", fmt.Errorf("secure store read failed: %w", err)
	} else if ok {
		return hex.EncodeToString(existing), nil
	}

	id, err := produceDeviceID(attestors)
	if err != nil {
		return "", err
	}

	stored, err := store.PutIfAbsent(key, id)
	if err != nil {
		return "", fmt.Errorf("secure store write failed: %w", err)
	}

	return hex.EncodeToString(stored), nil
}

func produceDeviceID(attestors []Attestor) ([]byte, error) {
	for _, a := range attestors {
		if !a.Available() {
			continue
		}
		id, err := a.DeviceID()
		if err == nil {
			return id, nil
		}
		// Operator-facing only; callers see the successful fallback.
		slog.Warn("device attestor failed, falling back",
			"error", err)
	}
	return RandomAttestor{}.DeviceID()
}

// ValidDeviceID reports whether a device id is well-formed: hex encoding a
// 256-bit value.
func ValidDeviceID(id string) bool {
	decoded, err := hex.DecodeString(id)
	return err == nil && len(decoded) == DeviceIDSize
}

// DeviceProducer assembles NPE claims from live device state.
type DeviceProducer struct {
	Store      SecureStore
	Account    string
	Platform   string
	AppVersion string

	// Attestors tried in order before the random fallback.
	Attestors []Attestor

	// DetectPosture overrides posture detection, for tests.
	DetectPosture func() SecurityPosture
}

// Claims produces the NPE claim set. The only side effect is first-time
// creation of the persisted device identifier.
func (p *DeviceProducer) Claims() (Set, error) {
	deviceID, err := GetOrCreateDeviceID(p.Store, p.Account, p.Attestors...)
	if err != nil {
		return Set{}, err
	}

	detect := p.DetectPosture
	if detect == nil {
		detect = DetectPosture
	}

	return NewNPE(NPEClaims{
		Platform:        p.Platform,
		DeviceID:        deviceID,
		AppVersion:      p.AppVersion,
		SecurityPosture: detect(),
	}), nil
}
