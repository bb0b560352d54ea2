package rules

import (
	"crypto/rand"
	"math/big"
)

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	TokenLen      = 20
)

// NewRoundToken returns a random round-epoch token. It is only ever used as
// a map key.
func NewRoundToken() string {
	b := make([]byte, TokenLen)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b)
}
