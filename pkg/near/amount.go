package near

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// NominationDecimals 1 NEAR = 10^24 yocto
	NominationDecimals = 24
	// TeraGasDecimals 1 Tgas = 10^12 gas
	TeraGasDecimals = 12
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseNEAR 把十进制 NEAR 金额 ("1.5") 转换成 yocto 整数，小数点右移 24 位，不经过浮点
func ParseNEAR(amount string) (*big.Int, error) {
	return shiftDecimal(amount, NominationDecimals)
}

// ParseTeraGas 把 Tgas ("30") 转换成 gas 整数
func ParseTeraGas(tgas string) (uint64, error) {
	v, err := shiftDecimal(tgas, TeraGasDecimals)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: gas 超出 u64 范围: %s", ErrInvalidAmount, tgas)
	}
	return v.Uint64(), nil
}

// FormatNEAR yocto → 十进制 NEAR 字符串，去掉末尾的 0
func FormatNEAR(yocto *big.Int) string {
	if yocto == nil {
		return "0"
	}
	return decimal.NewFromBigInt(yocto, -NominationDecimals).String()
}

func shiftDecimal(s string, places int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: 金额为空", ErrInvalidAmount)
	}
	// 只接受普通十进制写法，拒绝科学计数法等 decimal 能解析的其它格式
	if strings.ContainsAny(s, "eE+") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: 金额不能为负: %s", ErrInvalidAmount, s)
	}

	shifted := d.Shift(places)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("%w: 小数位超过 %d 位: %s", ErrInvalidAmount, places, s)
	}
	v := shifted.BigInt()
	if v.Cmp(maxU128) > 0 {
		return nil, fmt.Errorf("%w: 超出 u128 范围: %s", ErrInvalidAmount, s)
	}
	return v, nil
}
