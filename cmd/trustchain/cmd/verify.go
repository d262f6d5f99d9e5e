package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arkavo-org/trustchain/pkg/chain"
	"github.com/arkavo-org/trustchain/pkg/claims"
	"github.com/arkavo-org/trustchain/pkg/kas"
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("key", "", "Layer private key PEM (required)")
	verifyCmd.Flags().String("audience", "", "Required audience for authorization layers")
	verifyCmd.Flags().String("min-level", "password", "Minimum auth level: password, mfa, biometric")
	verifyCmd.Flags().String("in", "-", "Serialized chain file, - for stdin")
	verifyCmd.Flags().String("payload-out", "", "Write the terminal payload to this file")
	verifyCmd.MarkFlagRequired("key")
}

// verifiedLayer is the JSON shape printed per verified layer.
type verifiedLayer struct {
	Kind          string                      `json:"kind"`
	PE            *claims.PEClaims            `json:"pe,omitempty"`
	NPE           *claims.NPEClaims           `json:"npe,omitempty"`
	Authorization *claims.AuthorizationClaims `json:"authorization,omitempty"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a serialized chain and print its claims",
	Long: `Verify a serialized chain outermost-first, printing each layer's
claims as JSON on success. The terminal payload is written only with
--payload-out; it never mixes into the JSON report.

Examples:
  trustchain verify --key kas.pem --audience api.example.com --in chain.ntc
  cat chain.ntc | trustchain verify --key kas.pem --min-level mfa`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPath, _ := cmd.Flags().GetString("key")
		audience, _ := cmd.Flags().GetString("audience")
		minLevelName, _ := cmd.Flags().GetString("min-level")
		inPath, _ := cmd.Flags().GetString("in")

		minLevel, err := authLevelByName(minLevelName)
		if err != nil {
			return err
		}

		key, err := loadECPrivateKey(keyPath)
		if err != nil {
			return fmt.Errorf("failed to load layer key: %w", err)
		}

		chainBytes, err := readInput(inPath)
		if err != nil {
			return err
		}

		v := chain.NewVerifier(chain.Config{},
			chain.TrustAnchors{Default: kas.NewLocalProvider(key)},
			chain.Rules{
				Audience:     audience,
				MinAuthLevel: minLevel,
			})

		result, err := v.VerifyBytes(cmd.Context(), chainBytes)
		if err != nil {
			return fmt.Errorf("chain rejected: %w", err)
		}

		if payloadOut, _ := cmd.Flags().GetString("payload-out"); payloadOut != "" {
			if err := os.WriteFile(payloadOut, result.Payload, 0o600); err != nil {
				return err
			}
		}

		layers := make([]verifiedLayer, 0, len(result.Layers))
		for _, l := range result.Layers {
			layers = append(layers, verifiedLayer{
				Kind:          l.Kind.String(),
				PE:            l.PE,
				NPE:           l.NPE,
				Authorization: l.Authorization,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Layers      []verifiedLayer `json:"layers"`
			PayloadSize int             `json:"payloadSize"`
		}{layers, len(result.Payload)})
	},
}
