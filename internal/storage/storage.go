package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"resume-scanner/internal/config"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// 除 indexed 模式下的 Qdrant 外，其余组件都是可选的，初始化失败只记录警告。
type Storage struct {
	// 原始上传暂存，MinIO 不可用时回退到本地临时目录
	Stager Stager

	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 向量数据库
	Qdrant *Qdrant

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis
}

// NewStorage 创建存储管理器
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	storage := &Storage{}
	var err error
	var initErrors []string

	// 根据日志级别决定 MinIO 的 logger
	var minioLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		minioLogger = log.New(os.Stderr, "[MinIOStorage] ", log.LstdFlags|log.Lshortfile)
	} else {
		minioLogger = log.New(io.Discard, "", 0)
	}

	// 初始化MinIO（如果配置了）
	if cfg.MinIO.Endpoint != "" {
		storage.MinIO, err = NewMinIO(&cfg.MinIO, minioLogger)
		if err != nil {
			log.Printf("警告: 初始化MinIO失败, 使用本地暂存: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			storage.Stager = storage.MinIO
			log.Println("MinIO客户端初始化成功")
		}
	}
	if storage.Stager == nil {
		storage.Stager = NewLocalStager(cfg.Staging.Dir)
	}

	// 初始化RabbitMQ（如果配置了）
	if cfg.RabbitMQ.URL != "" {
		log.Printf("初始化RabbitMQ...")
		storage.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			log.Printf("警告: 初始化RabbitMQ失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	// 初始化MySQL（如果配置了）
	if cfg.MySQL.Host != "" {
		log.Printf("初始化MySQL...")
		storage.MySQL, err = NewMySQL(&cfg.MySQL)
		if err != nil {
			log.Printf("警告: 初始化MySQL失败: %v", err)
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		}
	}

	// Qdrant 与 Redis 只服务于 indexed 模式
	if cfg.Sink.Mode == config.SinkModeIndexed {
		log.Printf("初始化Qdrant at %s...", cfg.Qdrant.Endpoint)
		storage.Qdrant, err = NewQdrant(&cfg.Qdrant)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("%w: Qdrant: %v", ErrSinkUnavailable, err)
		}

		if cfg.Redis.Address != "" {
			log.Printf("初始化Redis at %s...", cfg.Redis.Address)
			storage.Redis, err = NewRedisAdapter(&cfg.Redis)
			if err != nil {
				log.Printf("警告: 初始化Redis失败, 仅使用点查去重: %v", err)
				initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
			}
		} else {
			log.Printf("Redis未配置, 跳过初始化.")
		}
	}

	if len(initErrors) > 0 {
		log.Printf("警告: 以下存储组件初始化失败: %s", strings.Join(initErrors, "; "))
	}
	return storage, nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
}
