// Package textnorm 文本规范化：去除空白、拒绝哨兵值、统一时间戳
package textnorm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// 哨兵值：导入数据中常见的 "null"/"undefined" 字面量视为空
var sentinels = map[string]struct{}{
	"null":      {},
	"undefined": {},
}

// NormalizeValue nil 与哨兵字面量返回空串，其余转字符串并 trim
func NormalizeValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		s = x
	case *string:
		if x == nil {
			return ""
		}
		s = *x
	case fmt.Stringer:
		s = x.String()
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	if _, ok := sentinels[s]; ok {
		return ""
	}
	return s
}

// NormalizeSpacing NormalizeValue 之后把连续空白压缩为单个空格
func NormalizeSpacing(v any) string {
	s := NormalizeValue(v)
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}

// NameKey 姓名索引键：去掉全部空白并转小写
func NameKey(v any) string {
	s := NormalizeSpacing(v)
	if s == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// FirstNonEmpty 返回第一个规范化后非空的值
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if n := NormalizeSpacing(v); n != "" {
			return n
		}
	}
	return ""
}

var calendarLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-1-2T15:04:05",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
	"2006-1",
	"2006年1月2日 15:04:05",
	"2006年1月2日 15:04",
	"2006年1月2日",
	"2006年1月",
}

// NormalizeTimestamp 转换为毫秒时间戳；无法解析时 ok=false（0 是合法时间戳，不代表缺失）
func NormalizeTimestamp(v any) (int64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case Timestamp:
		return x.Millis, x.Valid
	case *Timestamp:
		if x == nil {
			return 0, false
		}
		return x.Millis, x.Valid
	case time.Time:
		if x.IsZero() {
			return 0, false
		}
		return x.UnixMilli(), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return 0, false
		}
		return x.UnixMilli(), true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float32:
		return floatMillis(float64(x))
	case float64:
		return floatMillis(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return floatMillis(f)
	case string:
		return parseTimestampString(x)
	case *string:
		if x == nil {
			return 0, false
		}
		return parseTimestampString(*x)
	default:
		return parseTimestampString(NormalizeValue(x))
	}
}

func floatMillis(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func parseTimestampString(raw string) (int64, bool) {
	s := NormalizeValue(raw)
	if s == "" {
		return 0, false
	}
	if isDigits(s) {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	s = strings.NewReplacer(".", "-", "/", "-").Replace(s)
	for _, layout := range calendarLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
