package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// 提交处理状态流转:
// PENDING_ANALYSIS -> PROCESSING -> COMPLETED
//
//	-> FAILED
//	-> REJECTED (相关性门控拒绝)
const (
	StatusPendingAnalysis = "PENDING_ANALYSIS"
	StatusProcessing      = "PROCESSING"
	StatusCompleted       = "COMPLETED"
	StatusFailed          = "FAILED"
	StatusRejected        = "REJECTED"
)

// AnalysisSubmission 分析提交/快照表
// 每次上传或纯提示词提交生成一行，记录原始输入在对象存储中的
// 位置与处理状态。
type AnalysisSubmission struct {
	SubmissionUUID      string    `gorm:"type:char(36);primaryKey"`
	SubmissionTimestamp time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_as_submission_timestamp"`
	Source              string    `gorm:"type:varchar(20);not null"` // file / prompt / file-and-prompt
	OriginalFilename    string    `gorm:"type:varchar(255)"`
	OriginalFilePathOSS string    `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS   string    `gorm:"type:varchar(1024)"`
	RawFileMD5          string    `gorm:"type:char(32);index:idx_as_raw_file_md5"`
	UserPrompt          string    `gorm:"type:text"`
	TargetJobID         string    `gorm:"type:varchar(64);index:idx_as_target_job_id"` // 可选的目标岗位标识，用于外部关联
	ExtractionMethod    string    `gorm:"type:varchar(50)"`
	OverallScore        int       `gorm:"type:int;default:0"` // 冗余存储总分，列表查询免join结果表
	ProcessingStatus    string    `gorm:"type:varchar(50);default:'PENDING_ANALYSIS';index:idx_as_processing_status"`
	PipelineVersion     string    `gorm:"type:varchar(50)"`
	ErrorMessage        string    `gorm:"type:text"`
	CreatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (AnalysisSubmission) TableName() string {
	return "analysis_submissions"
}

// AnalysisResult 分析结果表
// 归一化后的分析产出按JSON列落库，Redis缓存失效后从这里回源。
type AnalysisResult struct {
	ResultID         uint64         `gorm:"primaryKey;autoIncrement"`
	SubmissionUUID   string         `gorm:"type:char(36);not null;uniqueIndex:idx_ar_submission_uuid"`
	OverallScore     int            `gorm:"type:int"`
	AnalysisJSON     datatypes.JSON `gorm:"type:json;not null"` // 归一化后的ResumeAnalysis
	VisualReviewJSON datatypes.JSON `gorm:"type:json"`          // 结构评审结果，可空
	LayoutJSON       datatypes.JSON `gorm:"type:json"`          // 版式元数据，可空
	NotesJSON        datatypes.JSON `gorm:"type:json"`          // 诊断备注 string[]
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	AnalysisSubmission *AnalysisSubmission `gorm:"foreignKey:SubmissionUUID;references:SubmissionUUID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (AnalysisResult) TableName() string {
	return "analysis_results"
}

// ToJSON 将任意值序列化为datatypes.JSON，失败时返回JSON null
func ToJSON(v interface{}) datatypes.JSON {
	bytes, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return bytes
}
