package core

import "fmt"

// ContentType 是内容类型的封闭枚举：movie / manga / anime。
// 推荐链路中所有按内容类型划分的状态（模型、矩阵、缓存 key）都以它为维度，
// 不允许用裸字符串或函数名嗅探来推断类型。
type ContentType string

const (
	ContentTypeMovie ContentType = "movie"
	ContentTypeManga ContentType = "manga"
	ContentTypeAnime ContentType = "anime"
)

// AllContentTypes 返回所有受支持的内容类型（稳定顺序，用于批量训练的 fan-out）。
func AllContentTypes() []ContentType {
	return []ContentType{ContentTypeMovie, ContentTypeManga, ContentTypeAnime}
}

// ParseContentType 将字符串解析为 ContentType，未知类型返回 INVALID_INPUT 错误。
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(s) {
	case ContentTypeMovie, ContentTypeManga, ContentTypeAnime:
		return ContentType(s), nil
	default:
		return "", NewDomainError(ModuleService, ErrorCodeInvalidInput,
			fmt.Sprintf("core: unknown content type %q", s))
	}
}

// Valid 判断内容类型是否受支持。
func (ct ContentType) Valid() bool {
	switch ct {
	case ContentTypeMovie, ContentTypeManga, ContentTypeAnime:
		return true
	}
	return false
}

func (ct ContentType) String() string { return string(ct) }
