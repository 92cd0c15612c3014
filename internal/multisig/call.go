package multisig

import (
	"encoding/json"
	"math/big"

	"multisig-core/pkg/near"
)

// functionCall 构造对多签合约的零押金调用
func functionCall(method string, args any, gas uint64) (near.FunctionCall, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return near.FunctionCall{}, err
	}
	return near.FunctionCall{
		MethodName: method,
		Args:       raw,
		Gas:        gas,
		Deposit:    new(big.Int),
	}, nil
}
