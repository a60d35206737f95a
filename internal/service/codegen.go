package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"photory/internal/domain"
)

const (
	CodeLength             = 8
	DefaultCodeMaxAttempts = 16
)

// CodeGenerator 生成房间邀请码：每位先等概率选数字/大写字母，再在该类内均匀取值。
// 唯一性最终由 rooms.code 唯一索引保证，这里的存在性检查只是减少插入冲突。
type CodeGenerator struct {
	maxAttempts int
	intN        func(n int) int
}

func NewCodeGenerator(maxAttempts int) *CodeGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCodeMaxAttempts
	}
	return &CodeGenerator{maxAttempts: maxAttempts, intN: rand.IntN}
}

func (g *CodeGenerator) candidate() string {
	b := make([]byte, CodeLength)
	for i := range b {
		if g.intN(2) == 0 {
			b[i] = byte('0' + g.intN(10))
		} else {
			b[i] = byte('A' + g.intN(26))
		}
	}
	return string(b)
}

// Generate 返回一个当前不存在（含已停用房间）的邀请码
func (g *CodeGenerator) Generate(ctx context.Context, rooms domain.RoomRepository) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := g.candidate()
		exists, err := rooms.ExistsCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check room code: %w", err)
		}
		if !exists {
			return code, nil
		}
		codeCollisions.Inc()
	}
	return "", domain.ErrCodeSpaceExhausted
}

// ValidCode 8 位，仅 0-9A-Z
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
