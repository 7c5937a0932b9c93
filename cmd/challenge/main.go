// Command challenge computes the answer slots an account must transcribe for a
// content item and hashes plaintext answers for committing.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"civic-governance-backend/challenge"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "challenge",
		Short:         "阅读测验挑战计算工具",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newIndexesCmd(), newHashCmd(), newKeyCmd())
	return root
}

func newIndexesCmd() *cobra.Command {
	var (
		answers int
		size    int
	)
	cmd := &cobra.Command{
		Use:   "indexes <content-key> <account>",
		Short: "计算账户需要回答的题目下标",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := challenge.Indexes(args[0], args[1], answers, size)
			if err != nil {
				return err
			}
			parts := make([]string, len(idx))
			for i, v := range idx {
				parts[i] = strconv.Itoa(v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, ","))
			return nil
		},
	}
	cmd.Flags().IntVarP(&answers, "answers", "n", 10, "已提交的答案数量")
	cmd.Flags().IntVar(&size, "size", challenge.Size, "挑战题目数量")
	return cmd
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <answer>...",
		Short: "计算明文答案的 keccak-256 哈希",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				fmt.Fprintln(cmd.OutOrStdout(), challenge.HashAnswer(a))
			}
			return nil
		},
	}
}

// newKeyCmd 对任意片段做 keccak-256，便于离线核对内容哈希
func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keccak <part>...",
		Short: "拼接各片段后计算 keccak-256",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts := make([][]byte, len(args))
			for i, a := range args {
				parts[i] = []byte(a)
			}
			fmt.Fprintln(cmd.OutOrStdout(), challenge.Keccak256Hex(parts...))
			return nil
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
