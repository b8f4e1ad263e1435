package coupon

import (
	"crypto/rand"
	"math/big"

	"github.com/go-faster/errors"
)

// CodeGenerator produces candidate coupon codes. Uniqueness is enforced by
// the store, not by the generator.
type CodeGenerator interface {
	Generate() (string, error)
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomCodes generates codes like FOOD-7K2QXA.
type RandomCodes struct {
	Prefix string
	Length int
}

// DefaultCodes is the generator used for challenge rewards and promotions.
var DefaultCodes = RandomCodes{Prefix: "FOOD-", Length: 6}

// Generate returns Prefix followed by Length random characters.
func (g RandomCodes) Generate() (string, error) {
	n := g.Length
	if n <= 0 {
		n = 6
	}
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		v, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Wrap(err, "read random")
		}
		buf[i] = codeAlphabet[v.Int64()]
	}
	return g.Prefix + string(buf), nil
}
