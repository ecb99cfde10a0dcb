package txn

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"betledger/internal/address"
)

func TestArgumentEncoding(t *testing.T) {
	cases := []struct {
		name string
		arg  Argument
		want []byte
	}{
		{"u8", U8(7), []byte{7}},
		{"u32", U32(0x01020304), []byte{4, 3, 2, 1}},
		{"u64", U64(1), []byte{1, 0, 0, 0, 0, 0, 0, 0}},
		{"bool", Bool(true), []byte{1}},
		{"string", String("hi"), []byte{2, 'h', 'i'}},
		{"bytes", Bytes(nil), []byte{0}},
	}
	for _, tc := range cases {
		if !bytes.Equal(tc.arg.Value, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, tc.arg.Value, tc.want)
		}
		if err := tc.arg.Validate(); err != nil {
			t.Fatalf("%s: validate: %v", tc.name, err)
		}
	}

	long := String(string(make([]byte, 200)))
	if long.Value[0] != 0xc8 || long.Value[1] != 0x01 || len(long.Value) != 202 {
		t.Fatalf("expected two-byte ULEB128 prefix, got %v", long.Value[:2])
	}

	addr := Address(address.MustParse("0x1"))
	if len(addr.Value) != 32 || addr.Value[31] != 1 {
		t.Fatalf("unexpected address encoding: %v", addr.Value)
	}
}

func TestArgumentValidateRejectsBadValues(t *testing.T) {
	bad := []Argument{
		{Kind: KindBool, Value: []byte{2}},
		{Kind: KindString, Value: []byte{5, 'a'}},
		{Kind: "u256", Value: []byte{0}},
	}
	for _, arg := range bad {
		if err := arg.Validate(); err == nil {
			t.Fatalf("expected error for %+v", arg)
		}
	}
}

func TestEncodeRoundTripAndSigningMessage(t *testing.T) {
	payer := address.Zero
	tx := &RawTransaction{
		Sender:                  sender,
		SequenceNumber:          3,
		Payload:                 entryFunction(placeWager()),
		MaxGasAmount:            1000,
		GasUnitPrice:            1,
		ExpirationTimestampSecs: 99,
		ChainID:                 4,
		FeePayer:                &payer,
	}
	enc, err := tx.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeRawTransaction(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, tx) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, tx)
	}

	msg, err := SigningMessage(tx)
	if err != nil {
		t.Fatalf("signing message: %v", err)
	}
	prefix := crypto.Keccak256([]byte("BETLEDGER::RawTransactionWithData"))
	if !bytes.HasPrefix(msg, prefix) || !bytes.Equal(msg[len(prefix):], enc) {
		t.Fatalf("signing message must be salt hash followed by encoding")
	}

	tx.FeePayer = nil
	unsponsored, err := tx.Encode()
	if err != nil {
		t.Fatalf("encode unsponsored: %v", err)
	}
	if bytes.Equal(unsponsored, enc) {
		t.Fatalf("fee payer slot must change the encoding")
	}
}
