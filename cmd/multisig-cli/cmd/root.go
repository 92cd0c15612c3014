package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"multisig-core/internal/bootstrap"
	"multisig-core/internal/session"
	"multisig-core/internal/signing"
	"multisig-core/pkg/config"
	"multisig-core/pkg/logger"
)

var (
	cfgFile string
	timeout time.Duration
	cfg     *config.Config
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "multisig-cli",
	Short: "NEAR 多签合约命令行工具",
	Long: `通过 Ledger 设备、本地 Keystore 或远程钱包操作 NEAR 多签合约。
支持查看待确认请求、提交/确认/拒绝请求以及管理本地密钥。`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		logger.Init(cfg.App.Env, "multisig-cli")
		return nil
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认 ./config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "等待设备签名和上链的超时时间")
}

// openCore 组装签名流水线；本地钱包未配置密码时交互式输入
func openCore(ctx context.Context) (*bootstrap.Core, error) {
	if session.WalletKind(cfg.Wallet.Kind) == session.WalletLocal && cfg.Wallet.Password == "" {
		pw, err := readPassword("请输入 Keystore 密码: ")
		if err != nil {
			return nil, err
		}
		cfg.Wallet.Password = pw
	}
	return bootstrap.New(ctx, cfg, bootstrap.Options{})
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	return string(b), nil
}

// waitFlow 等待流程结束并输出结果。远程钱包流程只输出重定向地址
func waitFlow(ctx context.Context, f *signing.Flow) error {
	st := f.Status()
	if st.State == signing.StateAwaitingRemote {
		fmt.Println("请在浏览器中打开以下地址完成签名:")
		fmt.Println(st.RedirectURL)
		return nil
	}

	fmt.Println("请在设备上核对并确认交易...")
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := f.Wait(ctx)
	if err != nil {
		_ = f.Cancel()
		return fmt.Errorf("等待签名超时: %w", err)
	}
	if err := printJSON(st); err != nil {
		return err
	}
	if st.State != signing.StateSuccess {
		return fmt.Errorf("签名流程失败: %s", st.Error)
	}
	return nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
