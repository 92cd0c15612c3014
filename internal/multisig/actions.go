package multisig

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
)

// wireAction 多签合约 add_request / get_request 中的动作 JSON。
// 金额是十进制字符串 (U128)，gas 是字符串 (U64)，二进制内容 base64
type wireAction struct {
	Type                near.ActionKind `json:"type"`
	Amount              string          `json:"amount,omitempty"`
	Code                string          `json:"code,omitempty"`
	PublicKey           string          `json:"public_key,omitempty"`
	Permission          *wirePermission `json:"permission,omitempty"`
	MethodName          string          `json:"method_name,omitempty"`
	Args                string          `json:"args,omitempty"`
	Deposit             string          `json:"deposit,omitempty"`
	Gas                 string          `json:"gas,omitempty"`
	NumConfirmations    *uint32         `json:"num_confirmations,omitempty"`
	ActiveRequestsLimit *uint32         `json:"active_requests_limit,omitempty"`
	Member              *wireMember     `json:"member,omitempty"`
}

type wirePermission struct {
	Allowance   *string  `json:"allowance"`
	ReceiverID  string   `json:"receiver_id"`
	MethodNames []string `json:"method_names"`
}

type wireMember struct {
	PublicKey string `json:"public_key,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// EncodeAction 把动作转换为合约 JSON，未知变体返回 ErrInvalidAction
func EncodeAction(a near.Action) (json.RawMessage, error) {
	w, err := toWire(a)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeAction 解析合约返回的动作 JSON
func DecodeAction(raw json.RawMessage) (near.Action, error) {
	var w wireAction
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errno.ErrInvalidAction.Wrap(err)
	}
	return fromWire(w)
}

func toWire(a near.Action) (wireAction, error) {
	w := wireAction{}
	switch v := a.(type) {
	case near.CreateAccount:
		w.Type = near.KindCreateAccount
	case near.DeployContract:
		w.Type = near.KindDeployContract
		w.Code = base64.StdEncoding.EncodeToString(v.Code)
	case near.FunctionCall:
		w.Type = near.KindFunctionCall
		w.MethodName = v.MethodName
		w.Args = base64.StdEncoding.EncodeToString(v.Args)
		w.Deposit = amountString(v.Deposit)
		w.Gas = strconv.FormatUint(v.Gas, 10)
	case near.Transfer:
		w.Type = near.KindTransfer
		w.Amount = amountString(v.Deposit)
	case near.AddKey:
		w.Type = near.KindAddKey
		w.PublicKey = v.PublicKey.String()
		if p := v.Permission; p != nil {
			wp := &wirePermission{ReceiverID: p.ReceiverID, MethodNames: p.MethodNames}
			if wp.MethodNames == nil {
				wp.MethodNames = []string{}
			}
			if p.Allowance != nil {
				s := p.Allowance.String()
				wp.Allowance = &s
			}
			w.Permission = wp
		}
	case near.DeleteKey:
		w.Type = near.KindDeleteKey
		w.PublicKey = v.PublicKey.String()
	case near.SetNumConfirmations:
		if v.NumConfirmations == 0 {
			return w, errno.ErrInvalidAction.WithMessage("确认数必须大于 0")
		}
		w.Type = near.KindSetNumConfirmations
		n := v.NumConfirmations
		w.NumConfirmations = &n
	case near.SetActiveRequestsLimit:
		w.Type = near.KindSetActiveRequestsLimit
		n := v.ActiveRequestsLimit
		w.ActiveRequestsLimit = &n
	case near.DeleteMember:
		w.Type = near.KindDeleteMember
		switch {
		case v.PublicKey != nil:
			w.Member = &wireMember{PublicKey: v.PublicKey.String()}
		case v.AccountID != "":
			w.Member = &wireMember{AccountID: v.AccountID}
		default:
			return w, errno.ErrInvalidAction.WithMessage("DeleteMember 缺少成员")
		}
	default:
		return w, errno.ErrInvalidAction.WithMessage(fmt.Sprintf("未知的动作类型 %T", a))
	}
	return w, nil
}

func fromWire(w wireAction) (near.Action, error) {
	switch w.Type {
	case near.KindCreateAccount:
		return near.CreateAccount{}, nil
	case near.KindDeployContract:
		code, err := base64.StdEncoding.DecodeString(w.Code)
		if err != nil {
			return nil, errno.ErrInvalidAction.Wrap(err)
		}
		return near.DeployContract{Code: code}, nil
	case near.KindFunctionCall:
		args, err := base64.StdEncoding.DecodeString(w.Args)
		if err != nil {
			return nil, errno.ErrInvalidAction.Wrap(err)
		}
		deposit, err := parseAmount(w.Deposit)
		if err != nil {
			return nil, err
		}
		gas, err := strconv.ParseUint(w.Gas, 10, 64)
		if err != nil {
			return nil, errno.ErrInvalidAmount.WithMessage("gas 格式错误: " + w.Gas)
		}
		return near.FunctionCall{MethodName: w.MethodName, Args: args, Gas: gas, Deposit: deposit}, nil
	case near.KindTransfer:
		amount, err := parseAmount(w.Amount)
		if err != nil {
			return nil, err
		}
		return near.Transfer{Deposit: amount}, nil
	case near.KindAddKey:
		pk, err := near.ParsePublicKey(w.PublicKey)
		if err != nil {
			return nil, errno.ErrInvalidAction.Wrap(err)
		}
		add := near.AddKey{PublicKey: pk}
		if p := w.Permission; p != nil {
			perm := &near.FunctionCallPermission{ReceiverID: p.ReceiverID, MethodNames: p.MethodNames}
			if p.Allowance != nil {
				if perm.Allowance, err = parseAmount(*p.Allowance); err != nil {
					return nil, err
				}
			}
			add.Permission = perm
		}
		return add, nil
	case near.KindDeleteKey:
		pk, err := near.ParsePublicKey(w.PublicKey)
		if err != nil {
			return nil, errno.ErrInvalidAction.Wrap(err)
		}
		return near.DeleteKey{PublicKey: pk}, nil
	case near.KindSetNumConfirmations:
		if w.NumConfirmations == nil {
			return nil, errno.ErrInvalidAction.WithMessage("缺少 num_confirmations")
		}
		return near.SetNumConfirmations{NumConfirmations: *w.NumConfirmations}, nil
	case near.KindSetActiveRequestsLimit:
		if w.ActiveRequestsLimit == nil {
			return nil, errno.ErrInvalidAction.WithMessage("缺少 active_requests_limit")
		}
		return near.SetActiveRequestsLimit{ActiveRequestsLimit: *w.ActiveRequestsLimit}, nil
	case near.KindDeleteMember:
		if w.Member == nil {
			return nil, errno.ErrInvalidAction.WithMessage("缺少 member")
		}
		if w.Member.PublicKey != "" {
			pk, err := near.ParsePublicKey(w.Member.PublicKey)
			if err != nil {
				return nil, errno.ErrInvalidAction.Wrap(err)
			}
			return near.DeleteMember{PublicKey: &pk}, nil
		}
		return near.DeleteMember{AccountID: w.Member.AccountID}, nil
	default:
		return nil, errno.ErrInvalidAction.WithMessage(fmt.Sprintf("未知的动作类型 %q", w.Type))
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errno.ErrInvalidAmount.WithMessage("金额格式错误: " + s)
	}
	return v, nil
}
