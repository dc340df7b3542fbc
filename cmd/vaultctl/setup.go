package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/Se7en-Seas/boring-vault-go/internal/prompt"
	"github.com/Se7en-Seas/boring-vault-go/internal/zero"
	"github.com/Se7en-Seas/boring-vault-go/signer"
)

// createKeyFile prompts the user for information needed to generate a new
// signing key and writes the encrypted key file to the configured path.
func createKeyFile(cfg *config) error {
	keyPath := cfg.KeyFile.Value
	if _, err := os.Stat(keyPath); err == nil {
		return fmt.Errorf("key file %q already exists", keyPath)
	} else if !os.IsNotExist(err) {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	// Start by prompting for the passphrase that will protect the key
	// file on disk.
	passphrase, err := prompt.PrivatePass(reader)
	if err != nil {
		return err
	}
	defer zero.Bytes(passphrase)

	// Ascertain the signing seed.  This will either be an automatically
	// generated value the user has already confirmed or a value the user
	// has entered which has already been validated.
	seed, err := prompt.Seed(reader)
	if err != nil {
		return err
	}
	defer zero.Bytes(seed)

	fmt.Println("Creating the key file...")
	if err := signer.WriteKeyFile(keyPath, passphrase, seed, nil); err != nil {
		return err
	}

	sgn, err := signer.FromSeed(seed)
	if err != nil {
		return err
	}
	defer sgn.Zero()

	fmt.Println("The key file has been created successfully.")
	fmt.Printf("Signing key address: %s\n", sgn.Key())
	return nil
}

// loadSigner unlocks the configured key file, prompting for its
// passphrase.
func loadSigner(cfg *config) (*signer.LocalSigner, error) {
	if _, err := os.Stat(cfg.KeyFile.Value); os.IsNotExist(err) {
		return nil, fmt.Errorf("key file %q does not exist; run with "+
			"--create to make one", cfg.KeyFile.Value)
	}

	passphrase, err := prompt.ProvidePrivPassphrase()
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(passphrase)

	return signer.ReadKeyFile(cfg.KeyFile.Value, passphrase)
}

// checkCreateDir checks that the path exists and is a directory.
// If path does not exist, it is created.
func checkCreateDir(path string) error {
	if fi, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			// Attempt data directory creation
			if err = os.MkdirAll(path, 0700); err != nil {
				return fmt.Errorf("cannot create directory: %s", err)
			}
		} else {
			return fmt.Errorf("error checking directory: %s", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("path '%s' is not a directory", path)
		}
	}

	return nil
}
