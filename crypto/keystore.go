package crypto

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
)

// SaveKeyFile writes key to path as a JSON byte array, the format used by
// keygen tools. If the parent directory does not exist it will be created
// with 0700 permissions. The file is replaced atomically.
func SaveKeyFile(path string, key solana.PrivateKey) error {
	if len(key) == 0 {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty key file path")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "keypair-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadKeyFile reads a keypair written by SaveKeyFile or a keygen tool.
func LoadKeyFile(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty key file path")
	}
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}
