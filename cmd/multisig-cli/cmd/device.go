package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"multisig-core/internal/bootstrap"
	"multisig-core/pkg/bip32"
	"multisig-core/pkg/near"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Ledger 设备操作",
}

var deviceVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "读取设备上 NEAR 应用的版本",
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := bootstrap.NewLedgerDevice(cfg)
		if err != nil {
			return err
		}
		v, err := dev.Version(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("NEAR App 版本: %s\n", v)
		return nil
	},
}

var devicePubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "读取派生路径对应的公钥",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("path")
		if raw == "" {
			raw = cfg.Ledger.Path
		}
		path, err := bip32.ParsePath(raw)
		if err != nil {
			return err
		}
		dev, err := bootstrap.NewLedgerDevice(cfg)
		if err != nil {
			return err
		}
		b, err := dev.PublicKey(cmd.Context(), path)
		if err != nil {
			return err
		}
		pk, err := near.PublicKeyFromEd25519(b)
		if err != nil {
			return err
		}
		fmt.Printf("路径: %s\n公钥: %s\n", path, pk)
		return nil
	},
}

func init() {
	devicePubkeyCmd.Flags().String("path", "", "派生路径 (默认 ledger.path)")
	deviceCmd.AddCommand(deviceVersionCmd, devicePubkeyCmd)
	rootCmd.AddCommand(deviceCmd)
}
