package cmd

import (
	"bufio"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"multisig-core/pkg/bip32"
	"multisig-core/pkg/bip39"
	"multisig-core/pkg/keystore"
	"multisig-core/pkg/near"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "本地密钥管理",
}

var keyNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新的 BIP-39 助记词",
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := bip39.NewMnemonicService().GenerateMnemonic(256) // 24 words
		if err != nil {
			return err
		}
		fmt.Println("---------------------------------------------------")
		fmt.Printf("助记词 (Mnemonic): \n%s\n", mnemonic)
		fmt.Println("---------------------------------------------------")
		fmt.Println("请妥善保管您的助记词！使用 'multisig-cli key import' 导入为本地 Keystore。")
		return nil
	},
}

var keyImportCmd = &cobra.Command{
	Use:   "import",
	Short: "从助记词派生 ed25519 密钥并保存为加密 Keystore",
	RunE: func(cmd *cobra.Command, args []string) error {
		account, _ := cmd.Flags().GetString("account")
		out, _ := cmd.Flags().GetString("out")
		path, _ := cmd.Flags().GetString("path")
		passphrase, _ := cmd.Flags().GetString("passphrase")
		if out == "" {
			out = cfg.Wallet.KeystorePath
		}
		if path == "" {
			path = cfg.Ledger.Path
		}

		fmt.Print("请输入助记词: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("读取助记词失败: %w", err)
		}
		mnemonic := strings.Join(strings.Fields(line), " ")

		seed, err := bip39.NewMnemonicService().Seed(mnemonic, passphrase)
		if err != nil {
			return err
		}
		priv, err := bip32.DeriveEd25519(seed, path)
		if err != nil {
			return err
		}

		pw, err := readPassword("设置 Keystore 密码: ")
		if err != nil {
			return err
		}
		again, err := readPassword("再次输入密码: ")
		if err != nil {
			return err
		}
		if pw == "" || pw != again {
			return errors.New("两次输入的密码不一致或为空")
		}

		keyJSON, err := keystore.EncryptKey(account, priv, pw, keystore.StandardScrypt)
		if err != nil {
			return err
		}
		if err := keyJSON.SaveToFile(out); err != nil {
			return err
		}
		pk, err := near.PublicKeyFromEd25519(priv.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		fmt.Printf("✅ Keystore 已保存: %s\n账户: %s\n公钥: %s\n", out, account, pk)
		return nil
	},
}

func init() {
	keyImportCmd.Flags().String("account", "", "密钥所属的 NEAR 账户")
	keyImportCmd.Flags().String("out", "", "Keystore 输出路径 (默认 wallet.keystore_path)")
	keyImportCmd.Flags().String("path", "", "SLIP-10 派生路径 (默认 ledger.path)")
	keyImportCmd.Flags().String("passphrase", "", "BIP-39 口令")
	_ = keyImportCmd.MarkFlagRequired("account")
	keyCmd.AddCommand(keyNewCmd, keyImportCmd)
	rootCmd.AddCommand(keyCmd)
}
