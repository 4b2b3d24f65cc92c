package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/backkem/netauth/pkg/crypto"
)

// serverKeyFile is the on-disk form of a sealing key pair.
type serverKeyFile struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func marshalServerKey(kp *crypto.SealKeyPair) ([]byte, error) {
	data, err := json.MarshalIndent(serverKeyFile{
		PublicKey:  crypto.Base64(kp.PublicKey()),
		PrivateKey: crypto.Base64(kp.PrivateKey()),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func readServerKey(path string) (*crypto.SealKeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f serverKeyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	pub, err := crypto.DecodeBase64(f.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	priv, err := crypto.DecodeBase64(f.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return crypto.SealKeyPairFromBytes(pub, priv)
}

// loadServerKey reads path, or generates an ephemeral pair when path is
// empty.
func loadServerKey(path string) (*crypto.SealKeyPair, error) {
	if path == "" {
		return crypto.GenerateSealKeyPair()
	}
	return readServerKey(path)
}

func readSigningKey(path string) (*crypto.P256KeyPair, error) {
	if path == "" {
		return nil, errors.New("no signing key given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return crypto.ParsePrivateKeyPEM(string(data))
}

// decodeServerPublicKey accepts a base64 sealing public key or the path of a
// server key file.
func decodeServerPublicKey(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if _, err := os.Stat(s); err == nil {
		kp, err := readServerKey(s)
		if err != nil {
			return nil, err
		}
		return kp.PublicKey(), nil
	}
	key, err := crypto.DecodeBase64(s)
	if err != nil {
		return nil, fmt.Errorf("server public key: %w", err)
	}
	if len(key) != crypto.SealKeySize {
		return nil, fmt.Errorf("server public key is %d bytes, want %d", len(key), crypto.SealKeySize)
	}
	return key, nil
}
