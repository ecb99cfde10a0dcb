package chain

import (
	"fmt"
	"strings"

	"betledger/internal/address"
)

// FunctionID names an on-chain entry or view function.
type FunctionID struct {
	Module     address.Address
	ModuleName string
	Name       string
}

// ParseFunctionID parses "<address>::<module>::<function>".
func ParseFunctionID(input string) (FunctionID, error) {
	parts := strings.Split(strings.TrimSpace(input), "::")
	if len(parts) != 3 {
		return FunctionID{}, fmt.Errorf("invalid function id: %q", input)
	}
	module, err := address.Parse(parts[0])
	if err != nil {
		return FunctionID{}, fmt.Errorf("function id %q: %w", input, err)
	}
	id := FunctionID{Module: module, ModuleName: strings.TrimSpace(parts[1]), Name: strings.TrimSpace(parts[2])}
	if err := id.Validate(); err != nil {
		return FunctionID{}, err
	}
	return id, nil
}

// Validate checks that the module and function names are set.
func (f FunctionID) Validate() error {
	if f.ModuleName == "" {
		return fmt.Errorf("function id: module name required")
	}
	if f.Name == "" {
		return fmt.Errorf("function id: function name required")
	}
	return nil
}

func (f FunctionID) String() string {
	return f.Module.Hex() + "::" + f.ModuleName + "::" + f.Name
}
