package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Sanitizer 負責過濾日誌中的敏感資訊
//
// 限制說明：
//   - SanitizeArgs() 僅對「敏感 key 的 value」整體遮罩
//   - 其他 string/error value 只套用 pattern 規則（例如 URL 中的簽章）
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []SanitizeRule
}

// SanitizeRule 單一過濾規則
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewSanitizer 建立預設 sanitizer
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultSanitizeRules(),
	}
}

var sensitiveKeys = []string{
	"password", "passwd", "pwd",
	"token", "secret", "api_key", "apikey",
	"access_key", "credential", "auth", "signature",
}

// defaultSanitizeRules 回傳預設過濾規則
func defaultSanitizeRules() []SanitizeRule {
	return []SanitizeRule{
		// 密碼與 token
		{regexp.MustCompile(`(?i)(password|passwd|pwd)=[^\s&]+`), "$1=***"},
		{regexp.MustCompile(`(?i)(access_token|refresh_token|token)=[^\s&]+`), "$1=***"},
		{regexp.MustCompile(`(?i)bearer\s+\S+`), "bearer ***"},
		{regexp.MustCompile(`(?i)api[_-]?key=[^\s&]+`), "api_key=***"},

		// Google OAuth
		{regexp.MustCompile(`ya29\.[0-9A-Za-z_\-]+`), "ya29.***"},
		{regexp.MustCompile(`1//[0-9A-Za-z_\-]{20,}`), "1//***"},

		// AWS：access key id 與 presigned URL 參數
		{regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`), "$1***"},
		{regexp.MustCompile(`(?i)(X-Amz-Signature|X-Amz-Credential|X-Amz-Security-Token)=[^\s&]+`), "$1=***"},

		// Windows 使用者路徑 (支援所有磁碟機與 UNC，不區分大小寫)
		{regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\]+`), "***:\\Users\\***"},
		{regexp.MustCompile(`(?i)\\\\[^\\]+\\[^\\]+\\Users\\[^\\]+`), "\\\\***\\***\\Users\\***"},

		// Unix 家目錄
		{regexp.MustCompile(`/home/[^/\s]+`), "/home/***"},
		{regexp.MustCompile(`/Users/[^/\s]+`), "/Users/***"},

		// Email 部分遮蔽
		{regexp.MustCompile(`([a-zA-Z0-9._%+-]{1,3})[a-zA-Z0-9._%+-]*@`), "$1***@"},
	}
}

// Sanitize applies every pattern to input
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apply(input)
}

func (s *Sanitizer) apply(input string) string {
	result := input
	for _, rule := range s.patterns {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return result
}

// SanitizeArgs masks values of sensitive keys and applies the patterns to
// the remaining string and error values
func (s *Sanitizer) SanitizeArgs(args []any) []any {
	if len(args) == 0 {
		return args
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]any, len(args))
	copy(result, args)

	for i := 0; i < len(result)-1; i += 2 {
		key, ok := result[i].(string)
		if !ok {
			continue
		}

		var value string
		switch v := result[i+1].(type) {
		case string:
			value = v
		case error:
			value = v.Error()
		case fmt.Stringer:
			value = v.String()
		default:
			continue
		}

		if isSensitiveKey(key) {
			result[i+1] = maskValue(value)
		} else {
			result[i+1] = s.apply(value)
		}
	}

	return result
}

// isSensitiveKey 判斷鍵名是否為敏感鍵
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lowerKey, sk) {
			return true
		}
	}
	return false
}

// maskValue 遮蔽值（保留前後各1字元）
func maskValue(value string) string {
	if len(value) <= 2 {
		return "***"
	}
	if len(value) <= 8 {
		return value[:1] + "***"
	}
	return value[:1] + "***" + value[len(value)-1:]
}

// AddRule 新增自訂過濾規則
func (s *Sanitizer) AddRule(pattern string, replacement string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, SanitizeRule{Pattern: re, Replacement: replacement})
	return nil
}
