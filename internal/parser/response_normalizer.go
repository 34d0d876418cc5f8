package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"resume-scanner/internal/types"
)

// ErrMalformedOutput 模型输出不是合法的JSON对象
var ErrMalformedOutput = errors.New("malformed model output")

// fencePattern 匹配 ``` 与 ```json 代码块标记
var fencePattern = regexp.MustCompile("```(json)?")

// StripFences 去掉所有代码块标记并裁剪首尾空白
func StripFences(raw string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
}

// NormalizeResponse 把模型原始输出解析为结构化记录。
// 顶层必须是JSON对象，否则返回包装了解析诊断的 ErrMalformedOutput。
func NormalizeResponse(raw string) (types.StructuredRecord, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty content", ErrMalformedOutput)
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := ExpectEOF(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T, want object", ErrMalformedOutput, value)
	}
	return types.StructuredRecord(obj), nil
}

// ExpectEOF 确认解码器在一个完整值之后只剩空白。
// dec.More() 遇到 '}' 或 ']' 也返回 false，不能用来判断尾随内容
func ExpectEOF(dec *json.Decoder) error {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("trailing content after JSON value: %v", err)
	}
	return fmt.Errorf("trailing content after JSON value: %v", tok)
}

// RenderRecord 把记录序列化为单行JSON文本，NormalizeResponse(RenderRecord(r)) 与 r 相等
func RenderRecord(record types.StructuredRecord) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return "", fmt.Errorf("序列化结构化记录失败: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
