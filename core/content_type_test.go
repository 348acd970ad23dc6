package core

import "testing"

func TestParseContentType(t *testing.T) {
	tests := []struct {
		input   string
		want    ContentType
		wantErr bool
	}{
		{"movie", ContentTypeMovie, false},
		{"manga", ContentTypeManga, false},
		{"anime", ContentTypeAnime, false},
		{"book", "", true},
		{"", "", true},
		{"Movie", "", true}, // 大小写敏感
	}
	for _, tt := range tests {
		got, err := ParseContentType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%q: 期望报错", tt.input)
			}
			if de := GetDomainError(err); de == nil || de.Code != ErrorCodeInvalidInput {
				t.Errorf("%q: 期望 INVALID_INPUT，实际 %v", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%q: 期望 %v，实际 %v (err=%v)", tt.input, tt.want, got, err)
		}
	}
}

func TestAllContentTypes(t *testing.T) {
	all := AllContentTypes()
	if len(all) != 3 {
		t.Fatalf("期望 3 个内容类型，实际 %d", len(all))
	}
	// 顺序稳定，批量训练依赖
	if all[0] != ContentTypeMovie || all[1] != ContentTypeManga || all[2] != ContentTypeAnime {
		t.Errorf("内容类型顺序错误: %v", all)
	}
}

func TestItemSetScore(t *testing.T) {
	it := NewItem("i1")
	it.SetScore(0.42)
	if it.Score != 0.42 {
		t.Errorf("分数字段错误: %v", it.Score)
	}
	if it.Meta[ScoreMetaKey] != 0.42 {
		t.Errorf("分数应同步到元数据: %v", it.Meta)
	}
}

func TestDomainErrorChecks(t *testing.T) {
	if !IsNotFound(ErrUserUnknown) {
		t.Error("ErrUserUnknown 应为 NOT_FOUND")
	}
	if !IsUntrained(ErrEngineUntrained) {
		t.Error("ErrEngineUntrained 应为 UNTRAINED")
	}
	if IsNotFound(nil) || IsUntrained(nil) {
		t.Error("nil 不应匹配任何错误类别")
	}
}
