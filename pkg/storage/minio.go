// Package storage提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/anzchy/chat-memo-pro-sub000/internal/config"
	"github.com/anzchy/chat-memo-pro-sub000/internal/model"
	"github.com/anzchy/chat-memo-pro-sub000/pkg/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ObjectPutter 是 Archiver 依赖的 MinIO 能力子集。
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archiver 在整体覆盖之前把旧的对话记录快照写入对象存储。
type Archiver struct {
	client ObjectPutter
	bucket string
	now    func() time.Time
}

// NewArchiver 创建一个写入指定存储桶的 Archiver。
func NewArchiver(client ObjectPutter, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: time.Now}
}

// ObjectName 返回对话快照的对象路径：overwrites/<对话ID>/<毫秒时间戳>.json
func ObjectName(conversationID string, at time.Time) string {
	return fmt.Sprintf("overwrites/%s/%d.json", conversationID, at.UnixMilli())
}

// Archive 将对话序列化为 JSON 并上传。
func (a *Archiver) Archive(ctx context.Context, previous *model.Conversation) error {
	body, err := json.Marshal(previous)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	objectName := ObjectName(previous.ID, a.now())
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive %s: %w", objectName, err)
	}
	log.Infof("已归档对话 %s 到 %s/%s", previous.ID, a.bucket, objectName)
	return nil
}
