package node

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject 从模型输出中截取第一个完整 JSON 对象。
// 容错逻辑：模型可能在 JSON 前后夹杂说明文字或 markdown 代码块标记。
func ExtractJSONObject(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return raw
	}

	// 去掉 ```json ... ``` 包裹
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}

	// 校验截取结果至少以一个 JSON 对象开头，否则原样返回交给调用方报错
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err == nil {
		if d, ok := tok.(json.Delim); ok && d == '{' {
			return raw
		}
	}
	return strings.TrimSpace(s)
}
