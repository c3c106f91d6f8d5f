package cmd

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/app"
	"github.com/spf13/viper"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "image-gallery",
	Short: "Client-side data layer for a remote image gallery service",
	Run: func(cmd *cobra.Command, args []string) {
		serveCmd.Run(cmd, args)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (eg: /etc/image-gallery/config.yaml)")
	rootCmd.PersistentFlags().String("remote", "", "remote image service base URL, overrides remote_base_url")
	if err := viper.BindPFlag("config_file_path", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return
	}
	if err := viper.BindPFlag("remote_base_url", rootCmd.PersistentFlags().Lookup("remote")); err != nil {
		return
	}
}

// openContainer 加载配置并初始化容器，命令结束时需要 Close
func openContainer(ctx context.Context) *app.Container {
	config.InitConfig()
	container := app.NewContainer(config.Get())
	if err := container.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	return container
}

// printJSON 以缩进 JSON 输出到标准输出
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}
