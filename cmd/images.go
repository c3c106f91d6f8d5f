package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/anoixa/image-gallery/internal/app"
	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/anoixa/image-gallery/utils"
	"github.com/spf13/cobra"
)

// imagesCmd 图片操作命令
var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Gallery image commands",
	Long:  "List, upload and modify images on the remote image service.",
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Load and print the gallery",
	Run: func(cmd *cobra.Command, args []string) {
		scopeName, _ := cmd.Flags().GetString("scope")
		user, _ := cmd.Flags().GetString("user")
		includePrivate, _ := cmd.Flags().GetBool("include-private")
		withPayload, _ := cmd.Flags().GetBool("payload")

		scope, err := parseScope(scopeName, user, includePrivate)
		if err != nil {
			log.Fatalf("Invalid scope: %v", err)
		}

		withContainer(func(ctx context.Context, c *app.Container) {
			records, err := c.Gallery().Reload(ctx, scope)
			if err != nil {
				log.Fatalf("Failed to load gallery: %v", err)
			}
			printRecords(records, withPayload)
		})
	},
}

var imagesUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload an image (jpg, jpeg or png)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		public, _ := cmd.Flags().GetBool("public")
		data, err := os.ReadFile(args[0])
		if err != nil {
			log.Fatalf("Failed to read %s: %v", args[0], err)
		}

		withContainer(func(ctx context.Context, c *app.Container) {
			record, err := c.Gallery().Upload(ctx, gallery.UploadInput{
				Name:   filepath.Base(args[0]),
				Data:   data,
				Public: public,
			})
			if err != nil {
				log.Fatalf("Upload failed: %v", err)
			}
			record.Payload = ""
			printJSON(record)
		})
	},
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		withContainer(func(ctx context.Context, c *app.Container) {
			if _, err := c.Gallery().Delete(ctx, id); err != nil {
				log.Fatalf("Delete failed: %v", err)
			}
			fmt.Printf("Image %d deleted\n", id)
		})
	},
}

var imagesPrivacyCmd = &cobra.Command{
	Use:   "privacy <id>",
	Short: "Toggle the public flag of an image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		withContainer(func(ctx context.Context, c *app.Container) {
			public, err := c.Gallery().TogglePrivacy(ctx, id)
			if err != nil {
				log.Fatalf("Privacy toggle failed: %v", err)
			}
			printJSON(map[string]interface{}{"id": id, "ispublic": public})
		})
	},
}

// likeCommand like / unlike / toggle-like 共用
func likeCommand(use, short string, op func(*gallery.Service) func(context.Context, int64) (int, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id := parseID(args[0])
			withContainer(func(ctx context.Context, c *app.Container) {
				likes, err := op(c.Gallery())(ctx, id)
				if err != nil {
					log.Fatalf("%s failed: %v", use, err)
				}
				printJSON(map[string]interface{}{"id": id, "likes": likes})
			})
		},
	}
}

var imagesSetLikesCmd = &cobra.Command{
	Use:   "set-likes <id> <count>",
	Short: "Set the like count of an image",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		n, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid like count %q", args[1])
		}
		withContainer(func(ctx context.Context, c *app.Container) {
			likes, err := c.Gallery().SetLikes(ctx, id, n)
			if err != nil {
				log.Fatalf("set-likes failed: %v", err)
			}
			printJSON(map[string]interface{}{"id": id, "likes": likes})
		})
	},
}

var imagesLikeStatusCmd = &cobra.Command{
	Use:   "like-status <id>",
	Short: "Show whether the current user likes an image",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		withContainer(func(ctx context.Context, c *app.Container) {
			liked, err := c.Gallery().LikeStatus(ctx, id)
			if err != nil {
				log.Fatalf("like-status failed: %v", err)
			}
			printJSON(map[string]interface{}{"id": id, "isLiked": liked})
		})
	},
}

var imagesSimilarCmd = &cobra.Command{
	Use:   "similar <id>",
	Short: "Find images similar to the given one",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		number, _ := cmd.Flags().GetInt("number")
		descriptor, _ := cmd.Flags().GetString("descriptor")
		withPayload, _ := cmd.Flags().GetBool("payload")

		withContainer(func(ctx context.Context, c *app.Container) {
			records, err := c.Gallery().Similar(ctx, id, number, models.SimilarityDescriptor(descriptor))
			if err != nil {
				log.Fatalf("Similarity search failed: %v", err)
			}
			printRecords(records, withPayload)
		})
	},
}

var imagesFilterCmd = &cobra.Command{
	Use:   "filter <id>",
	Short: "Apply a server-side filter to an image",
	Long: `Apply one of the server-side filters (gradienImage, modif_lum, invert, rotation).
Without --out the data URL is printed; with --out the decoded image is written to the file.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		var params gallery.FilterParams
		params.Filter, _ = cmd.Flags().GetString("filter")
		params.Number, _ = cmd.Flags().GetInt("number")
		params.Height, _ = cmd.Flags().GetInt("height")
		out, _ := cmd.Flags().GetString("out")

		withContainer(func(ctx context.Context, c *app.Container) {
			dataURL, err := c.Gallery().Filter(ctx, id, params)
			if err != nil {
				log.Fatalf("Filter failed: %v", err)
			}
			if out == "" {
				fmt.Println(dataURL)
				return
			}
			if err := writeDataURL(out, dataURL); err != nil {
				log.Fatalf("Failed to write %s: %v", out, err)
			}
			log.Printf("Filtered image written to %s", out)
		})
	},
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesListCmd, imagesUploadCmd, imagesDeleteCmd, imagesPrivacyCmd,
		imagesSetLikesCmd, imagesLikeStatusCmd, imagesSimilarCmd, imagesFilterCmd)
	imagesCmd.AddCommand(
		likeCommand("like", "Like an image", func(s *gallery.Service) func(context.Context, int64) (int, error) { return s.Like }),
		likeCommand("unlike", "Remove a like", func(s *gallery.Service) func(context.Context, int64) (int, error) { return s.Unlike }),
		likeCommand("toggle-like", "Toggle the like of the current user", func(s *gallery.Service) func(context.Context, int64) (int, error) { return s.ToggleLike }),
	)

	imagesListCmd.Flags().String("scope", "all", "gallery scope: all, own or user")
	imagesListCmd.Flags().String("user", "", "user id for --scope=user")
	imagesListCmd.Flags().Bool("include-private", false, "include private images (own gallery only)")
	imagesListCmd.Flags().Bool("payload", false, "include display payloads in the output")

	imagesUploadCmd.Flags().Bool("public", false, "make the image public (requires login)")

	imagesSimilarCmd.Flags().Int("number", 5, "number of similar images")
	imagesSimilarCmd.Flags().String("descriptor", string(models.DescriptorRGBCube), "descriptor: rgbcube or huesat")
	imagesSimilarCmd.Flags().Bool("payload", false, "include display payloads in the output")

	imagesFilterCmd.Flags().String("filter", gallery.FilterInvert, "filter name")
	imagesFilterCmd.Flags().Int("number", 0, "filter parameter")
	imagesFilterCmd.Flags().Int("height", 0, "output height, 0 keeps the original")
	imagesFilterCmd.Flags().String("out", "", "write the filtered image to this file")
}

// withContainer 初始化容器执行 fn，结束后关闭
func withContainer(fn func(ctx context.Context, c *app.Container)) {
	ctx := context.Background()
	container := openContainer(ctx)
	defer container.Close()
	fn(ctx, container)
}

func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		log.Fatalf("Invalid image id %q", s)
	}
	return id
}

func parseScope(name, user string, includePrivate bool) (fetch.Scope, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return fetch.AllImages(), nil
	case "own":
		return gallery.OwnImages(includePrivate), nil
	case "user":
		if user == "" {
			return fetch.Scope{}, fmt.Errorf("--user is required for the user scope")
		}
		return fetch.UserImages(user, includePrivate, ""), nil
	default:
		return fetch.Scope{}, fmt.Errorf("unknown scope %q", name)
	}
}

func printRecords(records []models.ImageRecord, withPayload bool) {
	out := make([]models.ImageRecord, len(records))
	copy(out, records)
	if !withPayload {
		for i := range out {
			out[i].Payload = ""
		}
	}
	printJSON(out)
}

// writeDataURL 将 data URL 解码后写入文件
func writeDataURL(path, dataURL string) error {
	mediaType, encoded, ok := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ";base64,")
	if !ok {
		return fmt.Errorf("not a base64 data URL")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	// 未给扩展名时按媒体类型补上
	if utils.GetExtensionFromFilename(path) == "" {
		path += utils.GetSafeExtension(mediaType)
	}
	return os.WriteFile(path, data, 0644)
}
