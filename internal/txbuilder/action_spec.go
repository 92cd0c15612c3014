package txbuilder

import (
	"encoding/json"
	"fmt"
	"math/big"

	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
)

// DefaultGasTera 函数调用未指定 gas 时使用
const DefaultGasTera = "30"

// ActionSpec 调用方以人类可读单位描述的动作: 金额用十进制 NEAR，gas 用 Tgas
type ActionSpec struct {
	Type                near.ActionKind `json:"type" binding:"required"`
	Deposit             string          `json:"deposit,omitempty"`
	Gas                 string          `json:"gas,omitempty"`
	MethodName          string          `json:"method_name,omitempty"`
	Args                json.RawMessage `json:"args,omitempty"`
	Code                []byte          `json:"code,omitempty"`
	PublicKey           string          `json:"public_key,omitempty"`
	Permission          *PermissionSpec `json:"permission,omitempty"`
	NumConfirmations    uint32          `json:"num_confirmations,omitempty"`
	ActiveRequestsLimit uint32          `json:"active_requests_limit,omitempty"`
	Member              string          `json:"member,omitempty"` // 公钥或账户
}

// PermissionSpec 受限访问密钥；Allowance 为空表示不限额
type PermissionSpec struct {
	Allowance   string   `json:"allowance,omitempty"`
	ReceiverID  string   `json:"receiver_id"`
	MethodNames []string `json:"method_names"`
}

// Normalize 把人类单位转换成链上整数单位，得到封闭的动作变体
func (s ActionSpec) Normalize() (near.Action, error) {
	switch s.Type {
	case near.KindCreateAccount:
		return near.CreateAccount{}, nil
	case near.KindDeployContract:
		if len(s.Code) == 0 {
			return nil, errno.ErrInvalidAction.WithMessage("DeployContract 缺少合约代码")
		}
		return near.DeployContract{Code: s.Code}, nil
	case near.KindFunctionCall:
		if s.MethodName == "" {
			return nil, errno.ErrInvalidAction.WithMessage("FunctionCall 缺少方法名")
		}
		gas, err := parseGas(s.Gas)
		if err != nil {
			return nil, err
		}
		deposit, err := parseDeposit(s.Deposit, true)
		if err != nil {
			return nil, err
		}
		args := []byte(s.Args)
		if len(args) == 0 {
			args = []byte("{}")
		}
		return near.FunctionCall{MethodName: s.MethodName, Args: args, Gas: gas, Deposit: deposit}, nil
	case near.KindTransfer:
		deposit, err := parseDeposit(s.Deposit, false)
		if err != nil {
			return nil, err
		}
		return near.Transfer{Deposit: deposit}, nil
	case near.KindAddKey:
		pk, err := parseKey(s.PublicKey)
		if err != nil {
			return nil, err
		}
		action := near.AddKey{PublicKey: pk}
		if s.Permission != nil {
			perm := &near.FunctionCallPermission{
				ReceiverID:  s.Permission.ReceiverID,
				MethodNames: s.Permission.MethodNames,
			}
			if s.Permission.Allowance != "" {
				allowance, err := parseDeposit(s.Permission.Allowance, false)
				if err != nil {
					return nil, err
				}
				perm.Allowance = allowance
			}
			action.Permission = perm
		}
		return action, nil
	case near.KindDeleteKey:
		pk, err := parseKey(s.PublicKey)
		if err != nil {
			return nil, err
		}
		return near.DeleteKey{PublicKey: pk}, nil
	case near.KindSetNumConfirmations:
		if s.NumConfirmations < 1 {
			return nil, errno.ErrInvalidAction.WithMessage("确认数至少为 1")
		}
		return near.SetNumConfirmations{NumConfirmations: s.NumConfirmations}, nil
	case near.KindSetActiveRequestsLimit:
		if s.ActiveRequestsLimit < 1 {
			return nil, errno.ErrInvalidAction.WithMessage("活跃请求上限至少为 1")
		}
		return near.SetActiveRequestsLimit{ActiveRequestsLimit: s.ActiveRequestsLimit}, nil
	case near.KindDeleteMember:
		if s.Member == "" {
			return nil, errno.ErrInvalidAction.WithMessage("DeleteMember 缺少成员")
		}
		if pk, err := near.ParsePublicKey(s.Member); err == nil {
			return near.DeleteMember{PublicKey: &pk}, nil
		}
		return near.DeleteMember{AccountID: s.Member}, nil
	default:
		return nil, errno.ErrInvalidAction.WithMessage(fmt.Sprintf("未知动作类型: %q", s.Type))
	}
}

// NormalizeAll 保持顺序；动作列表不能为空
func NormalizeAll(specs []ActionSpec) ([]near.Action, error) {
	if len(specs) == 0 {
		return nil, errno.ErrInvalidAction.WithMessage("动作列表为空")
	}
	out := make([]near.Action, 0, len(specs))
	for i, s := range specs {
		a, err := s.Normalize()
		if err != nil {
			return nil, fmt.Errorf("动作 #%d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func parseDeposit(amount string, allowEmpty bool) (*big.Int, error) {
	if amount == "" && allowEmpty {
		return new(big.Int), nil
	}
	v, err := near.ParseNEAR(amount)
	if err != nil {
		return nil, errno.ErrInvalidAmount.Wrap(err)
	}
	return v, nil
}

func parseGas(tgas string) (uint64, error) {
	if tgas == "" {
		tgas = DefaultGasTera
	}
	gas, err := near.ParseTeraGas(tgas)
	if err != nil {
		return 0, errno.ErrInvalidAmount.Wrap(err)
	}
	return gas, nil
}

func parseKey(s string) (near.PublicKey, error) {
	pk, err := near.ParsePublicKey(s)
	if err != nil {
		return near.PublicKey{}, errno.ErrInvalidAction.Wrap(err)
	}
	return pk, nil
}
