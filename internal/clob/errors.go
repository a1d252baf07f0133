package clob

import (
	"encoding/json"
	"strings"
)

// ExtractOrderError 从下单响应体中取出错误信息
// 依次尝试：纯字符串、error 字段（字符串或对象内 error/message）、errorMsg、message
func ExtractOrderError(body any) string {
	switch v := body.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return strings.TrimSpace(string(v))
		}
		return ExtractOrderError(decoded)
	case map[string]any:
		if e, ok := v["error"]; ok {
			switch ev := e.(type) {
			case string:
				if ev != "" {
					return ev
				}
			case map[string]any:
				if s, ok := ev["error"].(string); ok && s != "" {
					return s
				}
				if s, ok := ev["message"].(string); ok && s != "" {
					return s
				}
			}
		}
		if s, ok := v["errorMsg"].(string); ok && s != "" {
			return s
		}
		if s, ok := v["message"].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
