package txn

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"betledger/internal/address"
	"betledger/internal/chain"
)

const signingSalt = "BETLEDGER::RawTransactionWithData"

// Intent describes an entry function call before it is bound to an account.
type Intent struct {
	Function      chain.FunctionID
	TypeArguments []string
	Arguments     []Argument
}

// Validate rejects intents that cannot produce a transaction.
func (i Intent) Validate() error {
	if err := i.Function.Validate(); err != nil {
		return err
	}
	for n, t := range i.TypeArguments {
		if t == "" {
			return fmt.Errorf("type argument %d is empty", n)
		}
	}
	for n, arg := range i.Arguments {
		if err := arg.Validate(); err != nil {
			return fmt.Errorf("argument %d: %w", n, err)
		}
	}
	return nil
}

// EntryFunction is the payload of a RawTransaction.
type EntryFunction struct {
	Module        address.Address
	ModuleName    string
	Function      string
	TypeArguments []string
	Arguments     [][]byte
}

func entryFunction(i Intent) EntryFunction {
	args := make([][]byte, len(i.Arguments))
	for n, arg := range i.Arguments {
		args[n] = arg.Value
	}
	typeArgs := i.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	return EntryFunction{
		Module:        i.Function.Module,
		ModuleName:    i.Function.ModuleName,
		Function:      i.Function.Name,
		TypeArguments: typeArgs,
		Arguments:     args,
	}
}

// RawTransaction is an unsigned transaction bound to a sender sequence
// number and chain. A non-nil FeePayer marks a sponsored transaction; the
// relay replaces the zero placeholder with its own address.
type RawTransaction struct {
	Sender                  address.Address
	SequenceNumber          uint64
	Payload                 EntryFunction
	MaxGasAmount            uint64
	GasUnitPrice            uint64
	ExpirationTimestampSecs uint64
	ChainID                 uint64
	FeePayer                *address.Address `rlp:"nil"`
}

// clone returns a copy of tx that shares no memory with it.
func (tx RawTransaction) clone() RawTransaction {
	out := tx
	if tx.FeePayer != nil {
		payer := *tx.FeePayer
		out.FeePayer = &payer
	}
	if tx.Payload.TypeArguments != nil {
		out.Payload.TypeArguments = append([]string{}, tx.Payload.TypeArguments...)
	}
	if tx.Payload.Arguments != nil {
		out.Payload.Arguments = make([][]byte, len(tx.Payload.Arguments))
		for i, arg := range tx.Payload.Arguments {
			if arg != nil {
				out.Payload.Arguments[i] = append([]byte{}, arg...)
			}
		}
	}
	return out
}

// Encode returns the RLP encoding of the transaction.
func (tx *RawTransaction) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

// DecodeRawTransaction parses an RLP encoded transaction.
func DecodeRawTransaction(data []byte) (*RawTransaction, error) {
	var tx RawTransaction
	if err := rlp.DecodeBytes(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Sponsored reports whether the transaction carries a fee payer slot.
func (tx *RawTransaction) Sponsored() bool {
	return tx.FeePayer != nil
}

// SigningMessage is the domain-separated message the sender signs.
func SigningMessage(tx *RawTransaction) ([]byte, error) {
	enc, err := tx.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	msg := crypto.Keccak256([]byte(signingSalt))
	return append(msg, enc...), nil
}
