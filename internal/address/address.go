package address

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Length is the byte width of a canonical account address.
const Length = 32

// ErrInvalidAddress is returned for input that is not a hex account address.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a canonical, fixed-width account identifier. It is comparable and
// is the only key type used for caches and event equality filters.
type Address [Length]byte

// Zero is the all-zero address, used as the fee-payer placeholder.
var Zero Address

// Parse accepts an address with or without a 0x prefix and any number of hex
// digits up to 64, left-padding shortened forms with zeros.
func Parse(input string) (Address, error) {
	text := strings.TrimSpace(input)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text = text[2:]
	}
	if text == "" || len(text) > Length*2 {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}
	if len(text)%2 == 1 {
		text = "0" + text
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, input)
	}

	var addr Address
	copy(addr[Length-len(raw):], raw)
	return addr, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(input string) Address {
	addr, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return addr
}

// Normalize returns the canonical textual form of input.
func Normalize(input string) (string, error) {
	addr, err := Parse(input)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// Hex returns the 0x-prefixed, 64 digit lowercase form.
func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, Length)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == Zero
}

// MarshalText encodes the canonical form.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText decodes any accepted textual form.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseList parses a list of addresses, skipping blank entries.
func ParseList(inputs []string) ([]Address, error) {
	out := make([]Address, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		addr, err := Parse(input)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
