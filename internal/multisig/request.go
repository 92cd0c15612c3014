package multisig

import (
	"encoding/json"
	"sort"

	"multisig-core/pkg/near"
)

// ConfirmationSet 已确认成员集合；重复添加同一成员不改变集合
type ConfirmationSet struct {
	members map[string]struct{}
}

func NewConfirmationSet(members ...string) ConfirmationSet {
	s := ConfirmationSet{}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add 返回成员是否为新增
func (s *ConfirmationSet) Add(member string) bool {
	if s.members == nil {
		s.members = make(map[string]struct{})
	}
	if _, ok := s.members[member]; ok {
		return false
	}
	s.members[member] = struct{}{}
	return true
}

func (s ConfirmationSet) Has(member string) bool {
	_, ok := s.members[member]
	return ok
}

func (s ConfirmationSet) Len() int {
	return len(s.members)
}

// List 排序后的成员列表
func (s ConfirmationSet) List() []string {
	out := make([]string, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Union 返回两个集合的并集，不修改原集合
func (s ConfirmationSet) Union(other ConfirmationSet) ConfirmationSet {
	out := NewConfirmationSet(s.List()...)
	for m := range other.members {
		out.Add(m)
	}
	return out
}

func (s ConfirmationSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

func (s *ConfirmationSet) UnmarshalJSON(data []byte) error {
	var members []string
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	*s = NewConfirmationSet(members...)
	return nil
}

// Request 多签请求。达到阈值后由合约自行执行，这里只反映观察到的状态
type Request struct {
	ContractID            string          `json:"contract_id"`
	RequestID             uint32          `json:"request_id"`
	ReceiverID            string          `json:"receiver_id"`
	Actions               []near.Action   `json:"-"`
	Confirmations         ConfirmationSet `json:"confirmations"`
	RequiredConfirmations uint32          `json:"required_confirmations"`
}

// Ready 观察到的确认数是否已达到阈值
func (r *Request) Ready() bool {
	return uint32(r.Confirmations.Len()) >= r.RequiredConfirmations
}

func (r *Request) MarshalJSON() ([]byte, error) {
	type alias Request
	actions := make([]json.RawMessage, 0, len(r.Actions))
	for _, a := range r.Actions {
		raw, err := EncodeAction(a)
		if err != nil {
			return nil, err
		}
		actions = append(actions, raw)
	}
	return json.Marshal(struct {
		*alias
		Actions []json.RawMessage `json:"actions"`
	}{alias: (*alias)(r), Actions: actions})
}

// contractRequest get_request / add_request 的 request 参数
type contractRequest struct {
	ReceiverID string            `json:"receiver_id"`
	Actions    []json.RawMessage `json:"actions"`
}

// requestSnapshot 缓存的链上视图
type requestSnapshot struct {
	Request       contractRequest `json:"request"`
	Confirmations []string        `json:"confirmations"`
	Required      uint32          `json:"required"`
}

func encodeRequest(receiverID string, actions []near.Action) (contractRequest, error) {
	req := contractRequest{ReceiverID: receiverID, Actions: make([]json.RawMessage, 0, len(actions))}
	for _, a := range actions {
		raw, err := EncodeAction(a)
		if err != nil {
			return req, err
		}
		req.Actions = append(req.Actions, raw)
	}
	return req, nil
}

func (c contractRequest) decode() ([]near.Action, error) {
	actions := make([]near.Action, 0, len(c.Actions))
	for _, raw := range c.Actions {
		a, err := DecodeAction(raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}
