package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"

	// EntityKeyClaim 派生key占位实体
	EntityKeyClaim = "key_claim"

	// KeyResumeClaim 派生key占位 (STRING, SETNX)
	// 格式: app:resume:key_claim:{collection}:{derivedKey}
	KeyResumeClaim = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityKeyClaim + ":"
)
