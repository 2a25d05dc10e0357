/**
 * @description
 * Wallet signature proofs. Messages are signed by the browser wallet with the
 * personal_sign scheme (EIP-191 "\x19Ethereum Signed Message:\n" prefix) over secp256k1.
 */
package walletsig

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMalformedSignature is returned when a signature is not a 65-byte recoverable secp256k1 signature.
var ErrMalformedSignature = errors.New("malformed signature")

// Recover returns the address that produced signature over message.
func Recover(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrMalformedSignature
	}

	// Wallets emit v as 27/28; recovery expects 0/1.
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, ErrMalformedSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, ErrMalformedSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Matches reports whether claimed names the same account as recovered. Hex case
// (including EIP-55 checksum casing) is ignored; a claim that is not an address never matches.
func Matches(claimed string, recovered common.Address) bool {
	claimed = strings.TrimSpace(claimed)
	if !common.IsHexAddress(claimed) {
		return false
	}
	return strings.EqualFold(common.HexToAddress(claimed).Hex(), recovered.Hex())
}

// Truncate shortens an address for display, e.g. 0x12a...9f3c.
func Truncate(address string) string {
	if len(address) <= 9 {
		return address
	}
	return address[:5] + "..." + address[len(address)-4:]
}
