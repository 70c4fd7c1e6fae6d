package main

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/AutoFollow/internal/comment"
	"github.com/RecoveryAshes/AutoFollow/internal/utils"
	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "评论生成服务",
}

var commentTestCmd = &cobra.Command{
	Use:   "test",
	Short: "测试评论生成服务的密钥、地址和模型",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := comment.NewOpenAIProvider(appConfig.Comment)
		if err != nil {
			return err
		}
		res := provider.Test(cmd.Context())
		if !res.Success {
			return fmt.Errorf("%s", res.Message)
		}
		utils.Infof("✅ %s", res.Message)
		return nil
	},
}

var commentGenerateCmd = &cobra.Command{
	Use:   "generate <帖子文本>",
	Short: "为一段帖子文本生成评论",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := comment.NewOpenAIProvider(appConfig.Comment)
		if err != nil {
			return err
		}
		out, err := provider.Generate(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	commentCmd.AddCommand(commentTestCmd, commentGenerateCmd)
	rootCmd.AddCommand(commentCmd)
}
