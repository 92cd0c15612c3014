package bip39

import (
	"encoding/hex"
	"testing"
)

func TestGenerateMnemonic(t *testing.T) {
	service := NewMnemonicService()

	for _, bits := range []int{128, 256} {
		mnemonic, err := service.GenerateMnemonic(bits)
		if err != nil {
			t.Fatalf("生成 %d 位助记词失败: %v", bits, err)
		}
		if !service.ValidateMnemonic(mnemonic) {
			t.Errorf("生成的 %d 位助记词无效", bits)
		}
	}
}

func TestSeed(t *testing.T) {
	service := NewMnemonicService()

	// 标准测试向量，密码为空
	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	expectedSeedHex := "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"

	seed, err := service.Seed(mnemonic, "")
	if err != nil {
		t.Fatalf("测试向量助记词无效: %v", err)
	}
	if got := hex.EncodeToString(seed); got != expectedSeedHex {
		t.Errorf("Seed 生成不匹配。\n预期: %s\n实际: %s", expectedSeedHex, got)
	}
}

func TestSeed_Invalid(t *testing.T) {
	service := NewMnemonicService()

	if _, err := service.Seed("hello world invalid mnemonic phrase designed to fail validation check", ""); err != ErrInvalidMnemonic {
		t.Errorf("期望 ErrInvalidMnemonic，实际: %v", err)
	}
}
