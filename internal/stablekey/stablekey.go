// Package stablekey 生成稳定、URL 安全的标识符
package stablekey

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"time"

	"wisefido-intake/internal/textnorm"

	"github.com/google/uuid"
)

const (
	// HashPrefix 内容哈希键前缀
	HashPrefix = "h_"
	hashLength = 24
	// RandomPrefix 无法识别输入时的随机键前缀
	RandomPrefix = "import_"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Synthesize 依次尝试 primary、fallbackSeed：
// 清洗后非空则直接使用，否则使用内容哈希；两者都为空时返回随机标识（不可复现）
func Synthesize(primary, fallbackSeed string) string {
	if key, ok := fromValue(primary); ok {
		return key
	}
	if key, ok := fromValue(fallbackSeed); ok {
		return key
	}
	return Random()
}

// Sanitize 只保留 [A-Za-z0-9_-]
func Sanitize(v string) string {
	return unsafeChars.ReplaceAllString(textnorm.NormalizeValue(v), "")
}

// Hash 规范化值的 sha256，截取 24 位十六进制
func Hash(v string) string {
	sum := sha256.Sum256([]byte(textnorm.NormalizeValue(v)))
	return HashPrefix + hex.EncodeToString(sum[:])[:hashLength]
}

// Random 时间 + 随机数标识
func Random() string {
	return RandomPrefix + strconv.FormatInt(time.Now().UnixMilli(), 36) + "_" + uuid.NewString()[:8]
}

func fromValue(v string) (string, bool) {
	normalized := textnorm.NormalizeValue(v)
	if normalized == "" {
		return "", false
	}
	if sanitized := unsafeChars.ReplaceAllString(normalized, ""); sanitized != "" {
		return sanitized, true
	}
	return Hash(normalized), true
}
