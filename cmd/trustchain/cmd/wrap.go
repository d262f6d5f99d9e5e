package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkavo-org/trustchain/pkg/chain"
	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/claims/sqlitestore"
	"github.com/arkavo-org/trustchain/pkg/container"
)

func init() {
	rootCmd.AddCommand(wrapCmd)
	wrapCmd.Flags().String("key", "", "Recipient public key PEM (required)")
	wrapCmd.Flags().String("locator", "", "Key authority locator, e.g. kas.example.com (required)")
	wrapCmd.Flags().String("user", "", "Authenticated user id (required)")
	wrapCmd.Flags().String("level", "password", "Auth level: password, mfa, biometric")
	wrapCmd.Flags().String("platform", "linux", "Device platform claim")
	wrapCmd.Flags().String("app-version", "0.0.0", "Application version claim")
	wrapCmd.Flags().String("store", "", "Secure store path for the device id (default: in-memory)")
	wrapCmd.Flags().String("in", "-", "Payload file, - for stdin")
	wrapCmd.Flags().String("out", "-", "Output file, - for stdout")
	wrapCmd.MarkFlagRequired("key")
	wrapCmd.MarkFlagRequired("locator")
	wrapCmd.MarkFlagRequired("user")
}

var wrapCmd = &cobra.Command{
	Use:   "wrap",
	Short: "Wrap a payload into an identity and device attestation chain",
	Long: `Wrap a payload into a two-layer chain: a person identity layer
inside a device attestation layer. The result is the intermediate
container presented to an issuer for authorization.

The device id persists in the secure store across runs; the first run
creates it.

Examples:
  echo -n session | trustchain wrap --key kas.pub.pem --locator kas.example.com --user alice
  trustchain wrap --key kas.pub.pem --locator kas.example.com --user alice \
    --level biometric --store ~/.trustchain/secure.db --in payload.bin --out chain.ntc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPath, _ := cmd.Flags().GetString("key")
		locator, _ := cmd.Flags().GetString("locator")
		user, _ := cmd.Flags().GetString("user")
		levelName, _ := cmd.Flags().GetString("level")
		platform, _ := cmd.Flags().GetString("platform")
		appVersion, _ := cmd.Flags().GetString("app-version")
		storePath, _ := cmd.Flags().GetString("store")
		inPath, _ := cmd.Flags().GetString("in")
		outPath, _ := cmd.Flags().GetString("out")

		level, err := authLevelByName(levelName)
		if err != nil {
			return err
		}

		recipient, err := loadECPublicKey(keyPath)
		if err != nil {
			return fmt.Errorf("failed to load recipient key: %w", err)
		}

		payload, err := readInput(inPath)
		if err != nil {
			return err
		}

		var store claims.SecureStore
		if storePath != "" {
			s, err := sqlitestore.Open(storePath)
			if err != nil {
				return err
			}
			defer s.Close()
			store = s
		} else {
			store = claims.NewMemoryStore()
		}

		layer := container.CreateConfig{
			Locator:            locator,
			RecipientPublicKey: recipient,
		}

		b := chain.NewBuilder(chain.Config{})
		link, err := b.CreateAuthorizationChain(
			claims.Identity(user, level, time.Now()),
			&claims.DeviceProducer{
				Store:      store,
				Account:    user,
				Platform:   platform,
				AppVersion: appVersion,
				Attestors:  []claims.Attestor{&claims.PlatformAttestor{}},
			},
			payload,
			layer, layer,
		)
		if err != nil {
			return err
		}

		encoded, err := link.Encode()
		if err != nil {
			return err
		}
		return writeOutput(outPath, encoded)
	},
}

func authLevelByName(name string) (claims.AuthLevel, error) {
	switch name {
	case "password":
		return claims.AuthLevelPassword, nil
	case "mfa":
		return claims.AuthLevelMFA, nil
	case "biometric":
		return claims.AuthLevelBiometric, nil
	default:
		return "", fmt.Errorf("unknown auth level: %s (must be password, mfa, or biometric)", name)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
