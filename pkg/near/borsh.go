package near

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/big"
)

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// borshWriter 只实现交易编码用到的那部分 borsh 规则 (小端整数，u32 长度前缀)
type borshWriter struct {
	buf bytes.Buffer
	err error
}

func (w *borshWriter) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *borshWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *borshWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *borshWriter) u128(v *big.Int) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		w.fail(errors.New("u128 溢出"))
		return
	}
	// big.Int.FillBytes 是大端，borsh 要求小端
	var be [16]byte
	v.FillBytes(be[:])
	for i := 15; i >= 0; i-- {
		w.buf.WriteByte(be[i])
	}
}

func (w *borshWriter) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *borshWriter) fixed(b []byte) {
	w.buf.Write(b)
}

func (w *borshWriter) string(s string) {
	w.bytes([]byte(s))
}

func (w *borshWriter) publicKey(pk PublicKey) {
	w.u8(uint8(pk.Type))
	w.fixed(pk.Data[:])
}

func (w *borshWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *borshWriter) result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}
