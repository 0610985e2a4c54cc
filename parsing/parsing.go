// Package parsing 从自由格式的模型输出中提取类型化结果.
// 模型输出经常带有 markdown 代码块、前后缀解释文字甚至拒答,
// 这里的提取器对这些情况全部容忍, 提取失败返回零值而不是报错,
// 由上层的重试协议决定是否再次生成.
package parsing

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ShouldRespond 的三个指令值.
const (
	Respond = "RESPOND"
	Ignore  = "IGNORE"
	Stop    = "STOP"
)

// fenceRe 匹配 ```json ... ``` 或 ``` ... ``` 代码块.
var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ParseBooleanFromText 从文本提取 YES/NO 布尔值.
// 无法判定时返回 nil.
func ParseBooleanFromText(text string) *bool {
	token := strings.ToUpper(strings.TrimSpace(text))
	token = strings.Trim(token, "\"'`*._![]")

	var v bool
	switch token {
	case "YES", "Y", "TRUE", "T", "1", "ON", "ENABLE":
		v = true
	case "NO", "N", "FALSE", "F", "0", "OFF", "DISABLE":
		v = false
	default:
		return nil
	}
	return &v
}

// ParseShouldRespondFromText 提取 RESPOND/IGNORE/STOP 指令.
// 优先看首行(模型通常把决定写在最前面), 首行没有再在全文找子串.
// 无法判定时返回空字符串.
func ParseShouldRespondFromText(text string) string {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	firstLine = strings.ToUpper(strings.TrimSpace(firstLine))

	for _, directive := range []string{Respond, Ignore, Stop} {
		if strings.Contains(firstLine, directive) {
			return directive
		}
	}

	upper := strings.ToUpper(text)
	for _, directive := range []string{Respond, Ignore, Stop} {
		if strings.Contains(upper, directive) {
			return directive
		}
	}
	return ""
}

// ExtractJSON 从响应中取出最可能的 JSON 文本.
// 依次尝试: markdown 代码块 → 对象边界 {} → 数组边界 [].
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if matches := fenceRe.FindStringSubmatch(response); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	start = strings.Index(response, "[")
	end = strings.LastIndex(response, "]")
	if start >= 0 && end > start {
		return response[start : end+1]
	}

	return response
}

// ParseJSONObjectFromText 提取并解析一个 JSON 对象.
// 解析失败返回 nil.
func ParseJSONObjectFromText(text string) map[string]any {
	jsonStr := ExtractJSON(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(normalizeJSON(jsonStr)), &obj); err != nil {
		return nil
	}
	return obj
}

// ParseJSONArrayFromText 提取并解析一个 JSON 数组.
// 解析失败返回 nil.
func ParseJSONArrayFromText(text string) []any {
	jsonStr := ExtractJSON(text)
	var arr []any
	if err := json.Unmarshal([]byte(normalizeJSON(jsonStr)), &arr); err != nil {
		return nil
	}
	return arr
}

// ParseStringArrayFromText 提取字符串数组, 非字符串元素被丢弃.
func ParseStringArrayFromText(text string) []string {
	arr := ParseJSONArrayFromText(text)
	if arr == nil {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// trailingCommaRe 匹配对象/数组收尾处的多余逗号.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// normalizeJSON 修正模型常见的 JSON 瑕疵: 单引号键值与尾逗号.
func normalizeJSON(s string) string {
	s = strings.TrimSpace(s)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}
