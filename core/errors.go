package core

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//
// 使用场景：
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
//   - Engine 错误：UNTRAINED, UNAVAILABLE
//   - Service 错误：INVALID_INPUT
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "UNTRAINED"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "engine", "cache"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	if domainErr, ok := err.(*DomainError); ok {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeUntrained     = "UNTRAINED"      // 模型未训练
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore   = "store"   // 存储模块
	ModuleEngine  = "engine"  // 推荐引擎模块
	ModuleCache   = "cache"   // 缓存模块
	ModuleFeature = "feature" // 特征模块
	ModuleService = "service" // 服务模块
)

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsUntrained 检查错误是否为 UNTRAINED（冷启动/未训练，调用方应走热门兜底）
func IsUntrained(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUntrained
	}
	return false
}

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotSupported
	}
	return false
}

// Engine 错误定义
var (
	// ErrEngineUntrained 表示该内容类型还没有已发布的训练快照
	ErrEngineUntrained = NewDomainError(ModuleEngine, ErrorCodeUntrained, "engine: no trained snapshot for content type")

	// ErrEngineEmptyTrainingSet 表示训练集中没有任何有效交互
	ErrEngineEmptyTrainingSet = NewDomainError(ModuleEngine, ErrorCodeInvalidInput, "engine: empty interaction set")

	// ErrUserUnknown 表示用户不在当前快照的训练集内（冷启动）
	ErrUserUnknown = NewDomainError(ModuleEngine, ErrorCodeNotFound, "engine: user not in training set")

	// ErrItemUnknown 表示物品不在当前快照的训练集内
	ErrItemUnknown = NewDomainError(ModuleEngine, ErrorCodeNotFound, "engine: item not in training set")
)
