package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/netauth/pkg/credential"
	"github.com/backkem/netauth/pkg/crypto"
	"github.com/backkem/netauth/pkg/handshake"
	"github.com/backkem/netauth/pkg/transport"
	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	var (
		addr          string
		userName      string
		hardwareID    string
		serverKey     string
		signingKey    string
		token         string
		userPublicKey string
		sharedSecret  string
		encrypt       bool
		startingNonce uint64
		timeout       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Log in to a server and exchange lines with it",
		Long: `Log in to a server and exchange lines with it.

Without credentials the client joins as a guest. --signing-key mints a
fresh token bound to the server for each login. Otherwise a token handed
over by a launcher is read from NETAUTH_USER_JWT, NETAUTH_USER_PUBLIC_KEY
and NETAUTH_SHARED_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cachedKey, err := decodeServerPublicKey(serverKey)
			if err != nil {
				return err
			}

			creds, err := credentialSource(userName, signingKey, token, userPublicKey, sharedSecret)
			if err != nil {
				return err
			}

			var hwid []byte
			if hardwareID != "" {
				if hwid, err = crypto.DecodeBase64(hardwareID); err != nil {
					return fmt.Errorf("hardware ID: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			loginCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			conn, err := transport.DialTCP(loginCtx, addr, transport.ConnConfig{LoggerFactory: loggerFactory})
			if err != nil {
				return err
			}
			defer conn.Close()

			client := handshake.NewClient(handshake.ClientConfig{
				UserName:        userName,
				HardwareID:      hwid,
				ServerPublicKey: cachedKey,
				Credentials:     creds,
				Encrypt:         encrypt,
				StartingNonce:   startingNonce,
				LoggerFactory:   loggerFactory,
			})
			sess, err := client.Login(loginCtx, conn)
			if err != nil {
				var rej *handshake.RejectedError
				if errors.As(err, &rej) {
					if rej.Message.Redial {
						return fmt.Errorf("rejected: %s (redial)", rej.Message.Reason)
					}
					return fmt.Errorf("rejected: %s", rej.Message.Reason)
				}
				return err
			}
			cmd.Printf("logged in as %s (%s, %s, encrypted=%t)\n",
				sess.Identity().DisplayName(), sess.UserID(), sess.LoginType(), sess.Encrypted())

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				if err := sess.Send(ctx, scanner.Bytes()); err != nil {
					return err
				}
				reply, err := sess.Receive(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(reply))
			}
			return scanner.Err()
		},
	}

	f := cmd.Flags()
	f.StringVarP(&addr, "addr", "a", env("ADDR", "127.0.0.1:1212"), "server address")
	f.StringVarP(&userName, "user", "u", env("USER_NAME", ""), "preferred username")
	f.StringVar(&hardwareID, "hwid", env("HWID", ""), "hardware ID (base64)")
	f.StringVar(&serverKey, "server-key", env("SERVER_PUBLIC_KEY", ""), "cached server public key (base64) or key file")
	f.StringVar(&signingKey, "signing-key", env("SIGNING_KEY", ""), "PEM file of the user signing key")
	f.StringVar(&token, "token", env("USER_JWT", ""), "login token")
	f.StringVar(&userPublicKey, "user-public-key", env("USER_PUBLIC_KEY", ""), "PEM (or base64 PEM) of the token signing key")
	f.StringVar(&sharedSecret, "shared-secret", env("SHARED_SECRET", ""), "shared secret the token was issued for (base64)")
	f.BoolVar(&encrypt, "encrypt", true, "request an encrypted session when authenticating")
	f.Uint64Var(&startingNonce, "starting-nonce", 0, "server starting nonce (must be even)")
	f.DurationVar(&timeout, "timeout", 30*time.Second, "login timeout")
	return cmd
}

func credentialSource(userName, signingKey, token, userPublicKey, sharedSecret string) (handshake.CredentialSource, error) {
	if signingKey != "" {
		key, err := readSigningKey(signingKey)
		if err != nil {
			return nil, err
		}
		issuer, err := credential.NewIssuer(credential.IssuerConfig{Key: key})
		if err != nil {
			return nil, err
		}
		return handshake.IssuerCredential(issuer, userName), nil
	}
	if token == "" {
		return nil, nil
	}

	pem, err := decodePublicKeyPEM(userPublicKey)
	if err != nil {
		return nil, err
	}
	if pem == "" {
		return nil, errors.New("a token needs the user public key")
	}
	var secret []byte
	if sharedSecret != "" {
		if secret, err = crypto.DecodeBase64(sharedSecret); err != nil {
			return nil, fmt.Errorf("shared secret: %w", err)
		}
	}
	return handshake.StaticCredential(handshake.Credential{
		Token:        token,
		PublicKeyPEM: pem,
		SharedSecret: secret,
	}), nil
}
