// Package bip32 解析派生路径，并实现 ed25519 曲线的 SLIP-10 派生 (只支持硬化索引)。
package bip32

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

var (
	ErrInvalidSeed = errors.New("无效的种子")
	ErrInvalidPath = errors.New("无效的派生路径")
)

// Path 已解析的派生路径，每个元素已经按需加上硬化位
type Path []uint32

// ParsePath 解析 "44'/397'/0'/0'/1'"，也接受 "m/" 前缀和 h 后缀
func ParsePath(path string) (Path, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "m/")
	if path == "" {
		return nil, fmt.Errorf("%w: 路径为空", ErrInvalidPath)
	}

	segments := strings.Split(path, "/")
	out := make(Path, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: 路径段 '%s': %v", ErrInvalidPath, segment, err)
		}
		index := uint32(val)
		if hardened {
			if index >= hdkeychain.HardenedKeyStart {
				return nil, fmt.Errorf("%w: 硬化索引越界 '%s'", ErrInvalidPath, segment)
			}
			index |= hdkeychain.HardenedKeyStart
		}
		out = append(out, index)
	}
	return out, nil
}

// Bytes 设备协议使用的编码: 每段 4 字节大端，按路径顺序拼接
func (p Path) Bytes() []byte {
	out := make([]byte, 4*len(p))
	for i, index := range p {
		binary.BigEndian.PutUint32(out[4*i:], index)
	}
	return out
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, index := range p {
		if IsHardened(index) {
			parts[i] = strconv.FormatUint(uint64(index-hdkeychain.HardenedKeyStart), 10) + "'"
		} else {
			parts[i] = strconv.FormatUint(uint64(index), 10)
		}
	}
	return strings.Join(parts, "/")
}

func IsHardened(index uint32) bool {
	return index >= hdkeychain.HardenedKeyStart
}
