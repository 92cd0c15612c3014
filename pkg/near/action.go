package near

import (
	"fmt"
	"math/big"
)

// ActionKind 动作类型名，同时也是多签合约 JSON 中的 "type" 字段值
type ActionKind string

const (
	KindCreateAccount          ActionKind = "CreateAccount"
	KindDeployContract         ActionKind = "DeployContract"
	KindFunctionCall           ActionKind = "FunctionCall"
	KindTransfer               ActionKind = "Transfer"
	KindAddKey                 ActionKind = "AddKey"
	KindDeleteKey              ActionKind = "DeleteKey"
	KindSetNumConfirmations    ActionKind = "SetNumConfirmations"
	KindSetActiveRequestsLimit ActionKind = "SetActiveRequestsLimit"
	KindDeleteMember           ActionKind = "DeleteMember"
)

// Action 封闭的动作变体集合，只有本包内的类型可以实现
type Action interface {
	Kind() ActionKind
	sealed()
}

type CreateAccount struct{}

type DeployContract struct {
	Code []byte
}

type FunctionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *big.Int // yocto
}

type Transfer struct {
	Deposit *big.Int // yocto
}

type AddKey struct {
	PublicKey PublicKey
	// Permission 为 nil 表示 FullAccess
	Permission *FunctionCallPermission
}

// FunctionCallPermission 受限访问密钥
type FunctionCallPermission struct {
	Allowance   *big.Int // nil 表示不限额
	ReceiverID  string
	MethodNames []string
}

type DeleteKey struct {
	PublicKey PublicKey
}

// 以下三种只出现在多签合约的 add_request 参数里，不能直接上链

type SetNumConfirmations struct {
	NumConfirmations uint32
}

type SetActiveRequestsLimit struct {
	ActiveRequestsLimit uint32
}

// DeleteMember 新版多签合约按成员撤销，成员可以是公钥或账户
type DeleteMember struct {
	PublicKey *PublicKey
	AccountID string
}

func (CreateAccount) Kind() ActionKind          { return KindCreateAccount }
func (DeployContract) Kind() ActionKind         { return KindDeployContract }
func (FunctionCall) Kind() ActionKind           { return KindFunctionCall }
func (Transfer) Kind() ActionKind               { return KindTransfer }
func (AddKey) Kind() ActionKind                 { return KindAddKey }
func (DeleteKey) Kind() ActionKind              { return KindDeleteKey }
func (SetNumConfirmations) Kind() ActionKind    { return KindSetNumConfirmations }
func (SetActiveRequestsLimit) Kind() ActionKind { return KindSetActiveRequestsLimit }
func (DeleteMember) Kind() ActionKind           { return KindDeleteMember }

func (CreateAccount) sealed()          {}
func (DeployContract) sealed()         {}
func (FunctionCall) sealed()           {}
func (Transfer) sealed()               {}
func (AddKey) sealed()                 {}
func (DeleteKey) sealed()              {}
func (SetNumConfirmations) sealed()    {}
func (SetActiveRequestsLimit) sealed() {}
func (DeleteMember) sealed()           {}

// IsNative 是否可以直接编码进链上交易
func IsNative(a Action) bool {
	switch a.(type) {
	case CreateAccount, DeployContract, FunctionCall, Transfer, AddKey, DeleteKey:
		return true
	default:
		return false
	}
}

// borsh 枚举下标，与链上 Action 定义保持一致
const (
	tagCreateAccount  = 0
	tagDeployContract = 1
	tagFunctionCall   = 2
	tagTransfer       = 3
	tagAddKey         = 5
	tagDeleteKey      = 6

	permissionFunctionCall = 0
	permissionFullAccess   = 1
)

func encodeAction(w *borshWriter, a Action) {
	switch act := a.(type) {
	case CreateAccount:
		w.u8(tagCreateAccount)
	case DeployContract:
		w.u8(tagDeployContract)
		w.bytes(act.Code)
	case FunctionCall:
		w.u8(tagFunctionCall)
		w.string(act.MethodName)
		w.bytes(act.Args)
		w.u64(act.Gas)
		w.u128(act.Deposit)
	case Transfer:
		w.u8(tagTransfer)
		w.u128(act.Deposit)
	case AddKey:
		w.u8(tagAddKey)
		w.publicKey(act.PublicKey)
		w.u64(0) // access key nonce
		if act.Permission == nil {
			w.u8(permissionFullAccess)
			return
		}
		w.u8(permissionFunctionCall)
		if act.Permission.Allowance == nil {
			w.u8(0)
		} else {
			w.u8(1)
			w.u128(act.Permission.Allowance)
		}
		w.string(act.Permission.ReceiverID)
		w.u32(uint32(len(act.Permission.MethodNames)))
		for _, m := range act.Permission.MethodNames {
			w.string(m)
		}
	case DeleteKey:
		w.u8(tagDeleteKey)
		w.publicKey(act.PublicKey)
	case SetNumConfirmations, SetActiveRequestsLimit, DeleteMember:
		w.fail(fmt.Errorf("动作 %s 只能通过多签合约提交", a.Kind()))
	default:
		w.fail(fmt.Errorf("未知动作类型 %T", a))
	}
}
