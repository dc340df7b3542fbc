// Package prompt provides the interactive prompts used when creating or
// unlocking a signing key file.
package prompt

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh/terminal"

	"github.com/Se7en-Seas/boring-vault-go/signer"
)

// ErrInvalidSeed describes a seed string that is not valid hex of the
// required length.
var ErrInvalidSeed = errors.New("invalid seed")

// decodeSeed decodes a hex seed string, rejecting anything that is not
// exactly the signer seed length.
func decodeSeed(seedStr string) ([]byte, error) {
	seedStr = strings.TrimSpace(strings.ToLower(seedStr))
	seed, err := hex.DecodeString(seedStr)
	if err != nil || len(seed) != signer.SeedSize {
		return nil, ErrInvalidSeed
	}
	return seed, nil
}

// ProvideSeed is used to prompt for the signing seed when restoring an
// existing key.
func ProvideSeed(reader *bufio.Reader) ([]byte, error) {
	for {
		fmt.Print("Enter existing signing seed: ")
		seedStr, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}

		seed, err := decodeSeed(seedStr)
		if err != nil {
			fmt.Printf("Invalid seed specified.  Must be a "+
				"hexadecimal value of %d bytes\n", signer.SeedSize)
			continue
		}

		return seed, nil
	}
}

// ProvidePrivPassphrase is used to prompt for the passphrase which
// protects an existing key file.
func ProvidePrivPassphrase() ([]byte, error) {
	prompt := "Enter the passphrase for your signing key: "
	for {
		fmt.Print(prompt)
		pass, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Print("\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		return pass, nil
	}
}

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string, defaultEntry string) (string, error) {
	// Setup the prompt according to the parameters.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// promptListBool prompts the user for a boolean (yes/no) with the given prefix.
// The function will repeat the prompt to the user until they enter a valid
// reponse.
func promptListBool(reader *bufio.Reader, prefix string, defaultEntry string) (bool, error) {
	// Setup the valid responses.
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// promptPass prompts the user for a passphrase with the given prefix.  The
// function will ask the user to confirm the passphrase and will repeat the
// prompts until they enter a matching response.
func promptPass(prefix string, confirm bool) ([]byte, error) {
	// Prompt the user until they enter a passphrase.
	prompt := fmt.Sprintf("%s: ", prefix)
	for {
		fmt.Print(prompt)
		pass, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Print("\n")
		pass = bytes.TrimSpace(pass)
		if len(pass) == 0 {
			continue
		}

		if !confirm {
			return pass, nil
		}

		fmt.Print("Confirm passphrase: ")
		confirm, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, err
		}
		fmt.Print("\n")
		confirm = bytes.TrimSpace(confirm)
		if !bytes.Equal(pass, confirm) {
			fmt.Println("The entered passphrases do not match")
			continue
		}

		return pass, nil
	}
}

// PrivatePass prompts the user for a new passphrase to protect the key
// file being created.  The prompt is repeated until the user enters a
// matching confirmation.
func PrivatePass(reader *bufio.Reader) ([]byte, error) {
	return promptPass("Enter the passphrase for your new signing key", true)
}

// Seed prompts the user whether they want to use an existing signing
// seed.  When the user answers no, a new seed is generated and displayed
// so it can be backed up; the user must confirm they have stored it.
// When the user answers yes, the seed is read and validated.
func Seed(reader *bufio.Reader) ([]byte, error) {
	useExisting, err := promptListBool(reader, "Do you have an "+
		"existing signing seed you want to use?", "no")
	if err != nil {
		return nil, err
	}
	if useExisting {
		return ProvideSeed(reader)
	}

	seed := make([]byte, signer.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}

	fmt.Println("Your signing seed is:")
	fmt.Printf("%x\n", seed)
	fmt.Println("IMPORTANT: Keep the seed in a safe place as you will " +
		"NOT be able to restore your key without it.")
	fmt.Println("Please keep in mind that anyone who has access to the " +
		"seed can also restore your key thereby giving them access " +
		"to all your funds, so it is imperative that you keep it in " +
		"a secure location.")

	for {
		fmt.Print(`Once you have stored the seed in a safe and secure location, enter "OK" to continue: `)
		confirmSeed, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		confirmSeed = strings.TrimSpace(confirmSeed)
		confirmSeed = strings.Trim(confirmSeed, `"`)
		if strings.EqualFold("OK", confirmSeed) {
			break
		}
	}

	return seed, nil
}
