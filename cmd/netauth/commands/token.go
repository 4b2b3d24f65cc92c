package commands

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		signingKey string
		userName   string
		serverKey  string
		secret     string
		validity   time.Duration
		asEnv      bool
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a login token for a server",
		Long: `Issue a login token signed with a user signing key.

With --server the token is bound to that server and a shared secret is
generated unless --secret is given. --env prints the credential as the
NETAUTH_* variables read by "netauth connect".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readSigningKey(signingKey)
			if err != nil {
				return err
			}
			issuer, err := credential.NewIssuer(credential.IssuerConfig{Key: key, Validity: validity})
			if err != nil {
				return err
			}

			serverPub, err := decodeServerPublicKey(serverKey)
			if err != nil {
				return err
			}

			var sharedSecret []byte
			switch {
			case secret != "":
				if sharedSecret, err = crypto.DecodeBase64(secret); err != nil {
					return fmt.Errorf("shared secret: %w", err)
				}
			case serverPub != nil:
				sharedSecret = make([]byte, handshake.SharedSecretSize)
				if _, err := rand.Read(sharedSecret); err != nil {
					return err
				}
			}

			token, err := issuer.Issue(credential.IssueRequest{
				UserName:        userName,
				ServerPublicKey: serverPub,
				SharedSecret:    sharedSecret,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !asEnv {
				fmt.Fprintln(out, token)
				return nil
			}
			pubPEM, err := issuer.PublicKeyPEM()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "export %sUSER_JWT=%s\n", envPrefix, token)
			fmt.Fprintf(out, "export %sUSER_PUBLIC_KEY=%s\n", envPrefix, crypto.Base64([]byte(pubPEM)))
			if sharedSecret != nil {
				fmt.Fprintf(out, "export %sSHARED_SECRET=%s\n", envPrefix, crypto.Base64(sharedSecret))
			}
			if serverPub != nil {
				fmt.Fprintf(out, "export %sSERVER_PUBLIC_KEY=%s\n", envPrefix, crypto.Base64(serverPub))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&signingKey, "signing-key", env("SIGNING_KEY", ""), "PEM file of the user signing key")
	cmd.Flags().StringVarP(&userName, "user", "u", env("USER_NAME", ""), "preferred username claim")
	cmd.Flags().StringVar(&serverKey, "server", env("SERVER_PUBLIC_KEY", ""), "server sealing public key (base64) or key file")
	cmd.Flags().StringVar(&secret, "secret", "", "shared secret (base64)")
	cmd.Flags().DurationVar(&validity, "validity", credential.DefaultValidity, "token validity on either side of now")
	cmd.Flags().BoolVar(&asEnv, "env", false, "print shell exports instead of the bare token")
	return cmd
}

// decodePublicKeyPEM accepts a PEM string or its base64 encoding.
func decodePublicKeyPEM(s string) (string, error) {
	if s == "" || strings.HasPrefix(strings.TrimSpace(s), "-----BEGIN") {
		return s, nil
	}
	b, err := crypto.DecodeBase64(s)
	if err != nil {
		return "", fmt.Errorf("user public key: %w", err)
	}
	return string(b), nil
}
