package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"multisig-core/internal/bootstrap"
	"multisig-core/internal/signing"
	"multisig-core/internal/txbuilder"
	"multisig-core/pkg/near"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "查看多签合约上的请求",
}

var requestsListCmd = &cobra.Command{
	Use:   "list <contract>",
	Short: "列出待确认请求",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
		ids, err := core.Ledger.ListPendingRequests(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("没有待确认的请求")
			return nil
		}
		for _, id := range ids {
			req, err := core.Ledger.GetRequest(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			fmt.Printf("#%d → %s  确认 %d/%d\n", id, req.ReceiverID, req.Confirmations.Len(), req.RequiredConfirmations)
		}
		return nil
	}),
}

var requestsShowCmd = &cobra.Command{
	Use:   "show <contract> <request_id>",
	Short: "显示请求详情",
	Args:  cobra.ExactArgs(2),
	RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
		id, err := parseRequestID(args[1])
		if err != nil {
			return err
		}
		req, err := core.Ledger.GetRequest(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		return printJSON(req)
	}),
}

var submitCmd = &cobra.Command{
	Use:   "submit <contract>",
	Short: "提交新的多签请求 (提交者的确认随请求一起计入)",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
		receiver, _ := cmd.Flags().GetString("receiver")
		file, _ := cmd.Flags().GetString("actions")
		transfer, _ := cmd.Flags().GetString("transfer")

		var specs []txbuilder.ActionSpec
		if transfer != "" {
			specs = append(specs, txbuilder.ActionSpec{Type: near.KindTransfer, Deposit: transfer})
		}
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("读取动作文件失败: %w", err)
			}
			var fromFile []txbuilder.ActionSpec
			if err := json.Unmarshal(data, &fromFile); err != nil {
				return fmt.Errorf("解析动作文件失败: %w", err)
			}
			specs = append(specs, fromFile...)
		}
		actions, err := txbuilder.NormalizeAll(specs)
		if err != nil {
			return err
		}

		f, err := core.Ledger.SubmitRequest(cmd.Context(), args[0], receiver, actions...)
		if err != nil {
			return err
		}
		return waitFlow(cmd.Context(), f)
	}),
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <contract> <request_id>",
	Short: "确认请求",
	Args:  cobra.ExactArgs(2),
	RunE:  requestAction(func(core *bootstrap.Core) requestFn { return core.Ledger.Confirm }),
}

var rejectCmd = &cobra.Command{
	Use:   "reject <contract> <request_id>",
	Short: "删除请求",
	Args:  cobra.ExactArgs(2),
	RunE:  requestAction(func(core *bootstrap.Core) requestFn { return core.Ledger.Reject }),
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <contract> <public_key>",
	Short: "撤销成员密钥",
	Args:  cobra.ExactArgs(2),
	RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
		pk, err := near.ParsePublicKey(args[1])
		if err != nil {
			return err
		}
		f, err := core.Ledger.RevokeMember(cmd.Context(), args[0], pk)
		if err != nil {
			return err
		}
		return waitFlow(cmd.Context(), f)
	}),
}

var lockupCmd = &cobra.Command{
	Use:   "lockup <owner>",
	Short: "查看账户对应的锁仓合约",
	Args:  cobra.ExactArgs(1),
	RunE: withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
		acc, err := core.Ledger.LockupAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if acc == nil {
			fmt.Println("该账户没有锁仓合约")
			return nil
		}
		return printJSON(acc)
	}),
}

type requestFn func(ctx context.Context, contractID string, requestID uint32) (*signing.Flow, error)

func requestAction(pick func(*bootstrap.Core) requestFn) func(*cobra.Command, []string) error {
	return withCore(func(cmd *cobra.Command, core *bootstrap.Core, args []string) error {
		id, err := parseRequestID(args[1])
		if err != nil {
			return err
		}
		f, err := pick(core)(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		return waitFlow(cmd.Context(), f)
	})
}

func withCore(run func(*cobra.Command, *bootstrap.Core, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		core, err := openCore(cmd.Context())
		if err != nil {
			return err
		}
		defer core.Close()
		return run(cmd, core, args)
	}
}

func parseRequestID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("无效的请求 ID: %s", s)
	}
	return uint32(id), nil
}

func init() {
	submitCmd.Flags().String("receiver", "", "请求的接收账户 (默认合约本身)")
	submitCmd.Flags().String("actions", "", "动作列表 JSON 文件")
	submitCmd.Flags().String("transfer", "", "转账金额 (NEAR)")

	requestsCmd.AddCommand(requestsListCmd, requestsShowCmd)
	rootCmd.AddCommand(requestsCmd, submitCmd, confirmCmd, rejectCmd, revokeCmd, lockupCmd)
}
