package commands

import (
	"fmt"
	"os"

	"github.com/backkem/netauth/pkg/crypto"
	"github.com/spf13/cobra"
)

func keygenCmd() *cobra.Command {
	var (
		out     string
		signing bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a server sealing key pair or a user signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if signing {
				kp, err := crypto.P256GenerateKeyPair()
				if err != nil {
					return err
				}
				privPEM, err := kp.PrivateKeyPEM()
				if err != nil {
					return err
				}
				pubPEM, err := kp.PublicKeyPEM()
				if err != nil {
					return err
				}
				if out == "" {
					fmt.Fprint(cmd.OutOrStdout(), privPEM)
				} else if err := os.WriteFile(out, []byte(privPEM), 0o600); err != nil {
					return err
				}
				fmt.Fprint(cmd.ErrOrStderr(), pubPEM)
				return nil
			}

			kp, err := crypto.GenerateSealKeyPair()
			if err != nil {
				return err
			}
			data, err := marshalServerKey(kp)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.Base64(kp.PublicKey()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "file to write the key to")
	cmd.Flags().BoolVar(&signing, "signing", false, "generate a P-256 user signing key instead of a sealing key")
	return cmd
}
