package authtoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	biscuit "github.com/biscuit-auth/biscuit-go/v2"
)

const pemBlockType = "PRIVATE KEY"

// LoadOrCreateKeyFile reads the server's Biscuit root keypair from an
// ed25519 PKCS#8 PEM file at path, generating and persisting a fresh
// keypair with mode 0600 if the file does not exist yet. It refuses
// to start if an existing file's permissions grant group or other
// access, per the "created on first start with permissions 0600;
// refused on start if group/other bits are set" requirement.
func LoadOrCreateKeyFile(path string) (PrivateKey, PublicKey, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return createKeyFile(path)
	case err != nil:
		return PrivateKey{}, PublicKey{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().Perm()&0o077 != 0 {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("auth key file %s has permissions %04o: group/other access is not allowed", path, info.Mode().Perm())
	}
	return readKeyFile(path)
}

func createKeyFile(path string) (PrivateKey, PublicKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("generating auth key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("marshaling auth key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("writing auth key file %s: %w", path, err)
	}
	return keysFromEd25519(priv)
}

func readKeyFile(path string) (PrivateKey, PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("reading auth key file %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemBlockType {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("auth key file %s is not a valid PEM private key", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("parsing auth key file %s: %w", path, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("auth key file %s does not hold an ed25519 key", path)
	}
	return keysFromEd25519(priv)
}

func keysFromEd25519(priv ed25519.PrivateKey) (PrivateKey, PublicKey, error) {
	rootPriv, err := biscuit.NewPrivateKey(priv.Seed())
	if err != nil {
		return PrivateKey{}, PublicKey{}, fmt.Errorf("deriving Biscuit root key: %w", err)
	}
	return rootPriv, rootPriv.Public(), nil
}
