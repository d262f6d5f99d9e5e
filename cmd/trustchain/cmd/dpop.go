package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkavo-org/trustchain/pkg/dpop"
)

func init() {
	rootCmd.AddCommand(dpopCmd)
	dpopCmd.Flags().String("key", "", "Ed25519 private key PEM (required)")
	dpopCmd.Flags().String("method", "POST", "HTTP method bound into the proof")
	dpopCmd.Flags().String("url", "", "Request URL bound into the proof (required)")
	dpopCmd.Flags().String("chain", "", "Serialized chain file to bind via the ath claim")
	dpopCmd.MarkFlagRequired("key")
	dpopCmd.MarkFlagRequired("url")
}

var dpopCmd = &cobra.Command{
	Use:   "dpop",
	Short: "Generate a DPoP proof",
	Long: `Generate a DPoP proof bound to an HTTP method and URL, printed as a
compact JWS. With --chain the proof also binds to the serialized chain,
tying the presentation to the possessing client.

Examples:
  trustchain dpop --key proof.pem --method POST --url https://issuer.example.com/authorize
  trustchain dpop --key proof.pem --url https://api.example.com/resource --chain chain.ntc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyPath, _ := cmd.Flags().GetString("key")
		method, _ := cmd.Flags().GetString("method")
		url, _ := cmd.Flags().GetString("url")
		chainPath, _ := cmd.Flags().GetString("chain")

		key, err := loadEd25519PrivateKey(keyPath)
		if err != nil {
			return fmt.Errorf("failed to load proof key: %w", err)
		}

		var opts []dpop.ProofOption
		if chainPath != "" {
			chainBytes, err := readInput(chainPath)
			if err != nil {
				return err
			}
			opts = append(opts, dpop.WithChainHash(chainBytes))
		}

		proof, err := dpop.NewGenerator(key).Generate(method, url, opts...)
		if err != nil {
			return err
		}

		fmt.Println(proof)
		return nil
	},
}
