// Package passwordgen generates the passphrase offered as the
// provisioning AP's default password on first boot, the same
// diceware-plus-digit scheme the product's own password generator uses
// for human-memorable credentials, trimmed down to the one profile this
// appliance needs.
package passwordgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/sethvargo/go-diceware/diceware"
)

// minWords is chosen so four EFF long-list words (~12.9 bits each) plus a
// trailing digit clears 50 bits of entropy, comfortably above WPA2's
// 8-character floor.
const minWords = 4

// cryptoDigit returns a single random decimal digit using crypto/rand,
// not math/rand — this is credential material.
func cryptoDigit() (rune, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10))
	if err != nil {
		return 0, err
	}
	return rune('0' + n.Int64()), nil
}

// DefaultAPPassword returns a fresh human-memorable passphrase suitable
// as the provisioning AP's WPA2 password: four dictionary words joined
// by hyphens plus a trailing digit.
func DefaultAPPassword() (string, error) {
	words, err := diceware.Generate(minWords)
	if err != nil {
		return "", fmt.Errorf("passwordgen: %w", err)
	}
	digit, err := cryptoDigit()
	if err != nil {
		return "", fmt.Errorf("passwordgen: %w", err)
	}
	return strings.Join(words, "-") + "-" + string(digit), nil
}
