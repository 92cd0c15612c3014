// Package keystore 以 scrypt + AES-256-GCM 加密保存本地 ed25519 签名密钥。
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"

	"multisig-core/pkg/near"
)

var ErrMACMismatch = errors.New("invalid password or corrupted data (MAC mismatch)")

// EncryptedKeyJSON Keystore V3 风格的结构，密文是 ed25519 私钥种子 (32 字节)
type EncryptedKeyJSON struct {
	AccountID string     `json:"account_id"`
	PublicKey string     `json:"public_key"`
	Crypto    CryptoJSON `json:"crypto"`
	Id        string     `json:"id"`
	Version   int        `json:"version"`
}

type CryptoJSON struct {
	Cipher       string       `json:"cipher"`     // "aes-256-gcm"
	CipherText   string       `json:"ciphertext"` // hex
	CipherParams CipherParams `json:"cipherparams"`
	KDF          string       `json:"kdf"` // "scrypt"
	KDFParams    KDFParams    `json:"kdfparams"`
	MAC          string       `json:"mac"` // hex
}

type CipherParams struct {
	IV string `json:"iv"`
}

type KDFParams struct {
	DKLen int    `json:"dklen"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	Salt  string `json:"salt"`
}

// ScryptParams 允许测试使用更轻的参数
type ScryptParams struct {
	N, R, P int
}

var (
	StandardScrypt = ScryptParams{N: 262144, R: 8, P: 1}
	LightScrypt    = ScryptParams{N: 4096, R: 8, P: 1}
)

const dkLen = 32

// EncryptKey 加密本地账户的私钥
func EncryptKey(accountID string, priv ed25519.PrivateKey, password string, params ScryptParams) (*EncryptedKeyJSON, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("私钥长度错误: %d", len(priv))
	}
	pk, err := near.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	// 1. 随机 salt，scrypt 派生 AES 密钥
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	derivedKey, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, dkLen)
	if err != nil {
		return nil, err
	}

	// 2. AES-256-GCM 加密私钥种子
	gcm, err := newGCM(derivedKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, priv.Seed(), nil)

	// 3. MAC = SHA256(derivedKey || ciphertext)，解密前先用它判断密码
	mac := sha256.Sum256(append(append([]byte(nil), derivedKey...), ciphertext...))

	return &EncryptedKeyJSON{
		AccountID: accountID,
		PublicKey: pk.String(),
		Version:   3,
		Id:        uuid.NewString(),
		Crypto: CryptoJSON{
			Cipher:       "aes-256-gcm",
			CipherText:   hex.EncodeToString(ciphertext),
			CipherParams: CipherParams{IV: hex.EncodeToString(nonce)},
			KDF:          "scrypt",
			KDFParams: KDFParams{
				DKLen: dkLen,
				N:     params.N,
				R:     params.R,
				P:     params.P,
				Salt:  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac[:]),
		},
	}, nil
}

// DecryptKey 解密 Keystore 得到私钥，并校验公钥与记录一致
func DecryptKey(keyJSON *EncryptedKeyJSON, password string) (ed25519.PrivateKey, error) {
	salt, err := hex.DecodeString(keyJSON.Crypto.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid salt: %v", err)
	}
	nonce, err := hex.DecodeString(keyJSON.Crypto.CipherParams.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid iv: %v", err)
	}
	ciphertext, err := hex.DecodeString(keyJSON.Crypto.CipherText)
	if err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %v", err)
	}
	mac, err := hex.DecodeString(keyJSON.Crypto.MAC)
	if err != nil {
		return nil, fmt.Errorf("invalid mac: %v", err)
	}

	p := keyJSON.Crypto.KDFParams
	derivedKey, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, p.DKLen)
	if err != nil {
		return nil, err
	}

	calculated := sha256.Sum256(append(append([]byte(nil), derivedKey...), ciphertext...))
	if subtle.ConstantTimeCompare(mac, calculated[:]) != 1 {
		return nil, ErrMACMismatch
	}

	gcm, err := newGCM(derivedKey)
	if err != nil {
		return nil, err
	}
	seed, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %v", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("私钥种子长度错误: %d", len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pk, _ := near.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
	if keyJSON.PublicKey != "" && pk.String() != keyJSON.PublicKey {
		return nil, fmt.Errorf("公钥不匹配: 记录 %s, 解密得到 %s", keyJSON.PublicKey, pk)
	}
	return priv, nil
}

// SaveToFile 保存到文件，权限 0600
func (k *EncryptedKeyJSON) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0600)
}

// LoadFromFile 从文件加载
func LoadFromFile(filename string) (*EncryptedKeyJSON, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var k EncryptedKeyJSON
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
