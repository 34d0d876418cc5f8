package constants

import "time"

const (
	// ServiceName 服务名，用于追踪和日志
	ServiceName = "resume-scanner"

	// DefaultExtractTimeout 单个PDF解析策略的超时
	DefaultExtractTimeout = 30 * time.Second

	// UnknownCandidateName 抽取结果缺少 name 字段时的候选人名
	UnknownCandidateName = "Unknown"

	// DownloadFilename 最新记录下载的文件名
	DownloadFilename = "extracted_resume.json"
)
