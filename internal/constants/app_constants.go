package constants

import "time"

const (
	// DefaultPipelineVersion 当前分析流水线版本，写入提交记录便于回溯
	DefaultPipelineVersion = "1.0"

	// RawFileMD5SetKey 原始上传文件MD5去重集合
	RawFileMD5SetKey = "analysis:file_md5s"

	// ResultCacheDuration 分析结果缓存的默认时长
	ResultCacheDuration = 24 * time.Hour
)
