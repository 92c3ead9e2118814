package textnorm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Timestamp 毫秒时间戳，Valid=false 表示缺失
type Timestamp struct {
	Millis int64
	Valid  bool
}

// At 构造一个有效时间戳
func At(ms int64) Timestamp { return Timestamp{Millis: ms, Valid: true} }

// FromTime time.Time 转 Timestamp，零值视为缺失
func FromTime(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return At(t.UnixMilli())
}

// ParseTimestamp 任意输入转 Timestamp
func ParseTimestamp(v any) Timestamp {
	ms, ok := NormalizeTimestamp(v)
	if !ok {
		return Timestamp{}
	}
	return At(ms)
}

// Or 当前值缺失时返回 other
func (t Timestamp) Or(other Timestamp) Timestamp {
	if t.Valid {
		return t
	}
	return other
}

// Time 转 time.Time（UTC）
func (t Timestamp) Time() time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return time.UnixMilli(t.Millis).UTC()
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.Millis, 10)), nil
}

// UnmarshalJSON 接受数字、数字字符串、日期字符串与 null
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = ParseTimestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = ParseTimestamp(n)
	return nil
}
