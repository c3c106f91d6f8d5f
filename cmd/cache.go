package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/config"
	"github.com/spf13/cobra"
)

// cacheCmd 缓存管理命令
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Cache management commands",
	Long:  "Manage the filter variant cache.",
}

// cacheInvalidateCmd 使指定图片的滤镜变体失效
var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <id>...",
	Short: "Invalidate cached filter variants",
	Long:  `Invalidate every cached filter variant of the given images. Useful with a shared Redis cache after images change on the server.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCacheInvalidate(args); err != nil {
			log.Fatalf("Cache invalidate failed: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)
}

// runCacheInvalidate 执行缓存失效
func runCacheInvalidate(args []string) error {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid image id %q", arg)
		}
		ids = append(ids, id)
	}

	config.InitConfig()
	cfg := config.Get()

	provider, err := cache.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer provider.Close()

	log.Printf("Cache provider: %s", provider.Name())
	if provider.Name() == "memory" {
		log.Println("Memory cache is per process, nothing shared to invalidate")
	}

	variants := cache.NewVariantCache(provider, cfg.CacheVariantTTL)
	ctx := context.Background()
	for _, id := range ids {
		if err := variants.Invalidate(ctx, id); err != nil {
			return fmt.Errorf("image %d: %w", id, err)
		}
		log.Printf("Variants of image %d invalidated", id)
	}
	return nil
}
