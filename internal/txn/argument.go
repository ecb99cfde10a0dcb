package txn

import (
	"encoding/binary"
	"fmt"

	"betledger/internal/address"
)

// ArgKind is the on-chain type of an entry function argument.
type ArgKind string

const (
	KindU8      ArgKind = "u8"
	KindU32     ArgKind = "u32"
	KindU64     ArgKind = "u64"
	KindBool    ArgKind = "bool"
	KindAddress ArgKind = "address"
	KindString  ArgKind = "string"
	KindBytes   ArgKind = "vector<u8>"
)

// Argument is an encoded entry function argument. Integers are
// little-endian, strings and byte vectors carry a ULEB128 length prefix.
type Argument struct {
	Kind  ArgKind
	Value []byte
}

func U8(v uint8) Argument { return Argument{Kind: KindU8, Value: []byte{v}} }

func U32(v uint32) Argument {
	return Argument{Kind: KindU32, Value: binary.LittleEndian.AppendUint32(nil, v)}
}

func U64(v uint64) Argument {
	return Argument{Kind: KindU64, Value: binary.LittleEndian.AppendUint64(nil, v)}
}

func Bool(v bool) Argument {
	if v {
		return Argument{Kind: KindBool, Value: []byte{1}}
	}
	return Argument{Kind: KindBool, Value: []byte{0}}
}

func Address(v address.Address) Argument {
	return Argument{Kind: KindAddress, Value: v.Bytes()}
}

func String(v string) Argument {
	return Argument{Kind: KindString, Value: lengthPrefixed([]byte(v))}
}

func Bytes(v []byte) Argument {
	return Argument{Kind: KindBytes, Value: lengthPrefixed(v)}
}

func lengthPrefixed(v []byte) []byte {
	out := binary.AppendUvarint(make([]byte, 0, len(v)+binary.MaxVarintLen64), uint64(len(v)))
	return append(out, v...)
}

// Validate checks the encoded width against the kind.
func (a Argument) Validate() error {
	want := map[ArgKind]int{KindU8: 1, KindU32: 4, KindU64: 8, KindBool: 1, KindAddress: 32}
	switch a.Kind {
	case KindU8, KindU32, KindU64, KindBool, KindAddress:
		if len(a.Value) != want[a.Kind] {
			return fmt.Errorf("%s argument: %d bytes, want %d", a.Kind, len(a.Value), want[a.Kind])
		}
		if a.Kind == KindBool && a.Value[0] > 1 {
			return fmt.Errorf("bool argument: invalid byte %d", a.Value[0])
		}
	case KindString, KindBytes:
		n, read := binary.Uvarint(a.Value)
		if read <= 0 || uint64(len(a.Value)-read) != n {
			return fmt.Errorf("%s argument: bad length prefix", a.Kind)
		}
	default:
		return fmt.Errorf("unknown argument kind %q", a.Kind)
	}
	return nil
}
