package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"RingCut/config"
	"RingCut/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
	minioDelete bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "对象存储管理",
	Long:  `查看和管理对象存储（MinIO或本地目录）中的原始音频和铃声文件，支持列出文件、查看统计信息、删除目录。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		ctx := context.Background()

		fmt.Printf("存储后端: %s\n", cfg.StorageBackend)
		if cfg.StorageBackend == config.StorageMinio {
			fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		}

		store, err := storage.New(ctx, cfg)
		if err != nil {
			log.Fatalf("无法打开对象存储: %v", err)
		}

		if minioDelete {
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			n, err := storage.DeletePrefix(ctx, store, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个文件\n", n)
			return
		}

		fmt.Println()
		if err := storage.PrintReport(ctx, os.Stdout, store, minioPrefix, minioStats); err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}
		fmt.Println("\n操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示统计信息")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出所有文件
  ringcut minio

  # 只看铃声
  ringcut minio -p "wav_ringtones/"

  # 显示统计信息
  ringcut minio -s

  # 删除目录及其下的所有文件
  ringcut minio -d -p "mp3_ringtones/"`
}
