package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arkavo-org/trustchain/pkg/crypto"
)

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().String("curve", "p256", "Curve for EC keys: p256, p384, p521")
	keygenCmd.Flags().String("type", "ec", "Key type: ec (layer keys), ed25519 (proof keys)")
	keygenCmd.Flags().String("out", "key", "Output path prefix; writes <out>.pem and <out>.pub.pem")
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key pair",
	Long: `Generate a key pair and write it as PEM files.

EC keys serve as layer recipient keys for container creation and opening.
Ed25519 keys sign DPoP proofs.

Examples:
  trustchain keygen --out device
  trustchain keygen --curve p384 --out issuer
  trustchain keygen --type ed25519 --out proof`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keyType, _ := cmd.Flags().GetString("type")
		out, _ := cmd.Flags().GetString("out")

		switch keyType {
		case "ec":
			curveName, _ := cmd.Flags().GetString("curve")
			curve, err := curveByName(curveName)
			if err != nil {
				return err
			}
			key, err := crypto.GenerateKeyPair(curve)
			if err != nil {
				return err
			}

			privDER, err := x509.MarshalECPrivateKey(key)
			if err != nil {
				return err
			}
			if err := writePEM(out+".pem", "EC PRIVATE KEY", privDER); err != nil {
				return err
			}

			pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
			if err != nil {
				return err
			}
			if err := writePEM(out+".pub.pem", "PUBLIC KEY", pubDER); err != nil {
				return err
			}

		case "ed25519":
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			privDER, err := x509.MarshalPKCS8PrivateKey(priv)
			if err != nil {
				return err
			}
			if err := writePEM(out+".pem", "PRIVATE KEY", privDER); err != nil {
				return err
			}

			pubDER, err := x509.MarshalPKIXPublicKey(priv.Public())
			if err != nil {
				return err
			}
			if err := writePEM(out+".pub.pem", "PUBLIC KEY", pubDER); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unknown key type: %s (must be ec or ed25519)", keyType)
		}

		fmt.Printf("wrote %s.pem and %s.pub.pem\n", out, out)
		return nil
	},
}

func curveByName(name string) (crypto.CurveID, error) {
	switch name {
	case "p256":
		return crypto.CurveP256, nil
	case "p384":
		return crypto.CurveP384, nil
	case "p521":
		return crypto.CurveP521, nil
	default:
		return 0, fmt.Errorf("unknown curve: %s (must be p256, p384, or p521)", name)
	}
}
