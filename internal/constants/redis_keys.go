package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// AnalysisModulePrefix 分析模块
	AnalysisModulePrefix = "analysis"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntityResult 分析结果实体
	EntityResult = "result"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityMD5ToUUID MD5到UUID的映射实体
	EntityMD5ToUUID = "md5_to_uuid"

	// KeyAnalysisResult 分析结果缓存 (STRING, JSON)
	// 格式: app:analysis:result:{submissionUUID}
	KeyAnalysisResult = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityResult + ":%s"

	// KeyAnalysisLock 提交处理锁 (STRING)
	// 格式: app:analysis:lock:{submissionUUID}
	KeyAnalysisLock = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityLock + ":%s"

	// KeyFileMD5ToUUID 原始文件MD5到提交UUID的映射 (STRING)
	// 格式: app:file:md5_to_uuid:{md5}
	KeyFileMD5ToUUID = AppPrefix + ":" + FileModulePrefix + ":" + EntityMD5ToUUID + ":%s"
)
