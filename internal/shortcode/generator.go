package shortcode

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Charset 包含用于生成短码的所有字符
	Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// DefaultLength 是默认短码长度，62^6 约 568 亿种组合
	DefaultLength = 6
	// MinLength 和 MaxLength 限定可调的短码长度
	MinLength = 6
	MaxLength = 32
)

// Source 产生候选短码
type Source interface {
	Generate(length int) string
}

// Generator 从固定字母表中独立均匀地抽取字符生成候选短码
// 不感知已有短码，唯一性由 Allocator 配合存储保证
type Generator struct {
	alphabet string
}

// GeneratorOption 配置 Generator
type GeneratorOption func(*Generator)

// WithAlphabet 替换默认字母表，主要用于测试缩小键空间
func WithAlphabet(alphabet string) GeneratorOption {
	return func(g *Generator) {
		g.alphabet = alphabet
	}
}

// NewGenerator 创建短码生成器
func NewGenerator(opts ...GeneratorOption) (*Generator, error) {
	g := &Generator{alphabet: Charset}
	for _, opt := range opts {
		opt(g)
	}
	if err := validateAlphabet(g.alphabet); err != nil {
		return nil, err
	}
	return g, nil
}

// Generate 生成一个长度为 length 的候选短码，length 非正时使用默认长度
func (g *Generator) Generate(length int) string {
	if length <= 0 {
		length = DefaultLength
	}
	// 字母表已在构造时校验，只有系统随机源故障才会 panic
	return gonanoid.MustGenerate(g.alphabet, length)
}

// Alphabet 返回当前字母表
func (g *Generator) Alphabet() string {
	return g.alphabet
}

func validateAlphabet(alphabet string) error {
	if len(alphabet) < 2 || len(alphabet) > 255 {
		return fmt.Errorf("字母表长度必须在 2 到 255 之间: %d", len(alphabet))
	}
	seen := make(map[rune]struct{}, len(alphabet))
	for _, r := range alphabet {
		if r > 127 || !isAlnum(byte(r)) {
			return fmt.Errorf("字母表只能包含 ASCII 字母和数字: %q", r)
		}
		if _, ok := seen[r]; ok {
			return fmt.Errorf("字母表包含重复字符: %q", r)
		}
		seen[r] = struct{}{}
	}
	return nil
}

// Valid 判断 code 是否可能是一个短码：非空、不超过 MaxLength、只含 ASCII 字母数字
func Valid(code string) bool {
	if code == "" || len(code) > MaxLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isAlnum(code[i]) {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}
