package service

import (
	"net/url"

	"github.com/go-playground/validator/v10"
)

// MaxURLLength 与 original_url 列宽一致
const MaxURLLength = 2048

// URLValidator 校验外部传入的 URL
type URLValidator interface {
	IsValidURL(raw string) bool
}

// HTTPURLValidator 只接受带主机名的 http/https 绝对地址
type HTTPURLValidator struct {
	validate *validator.Validate
}

// NewURLValidator 创建默认校验器
func NewURLValidator() *HTTPURLValidator {
	return &HTTPURLValidator{validate: validator.New()}
}

func (v *HTTPURLValidator) IsValidURL(raw string) bool {
	if raw == "" || len(raw) > MaxURLLength {
		return false
	}
	if err := v.validate.Var(raw, "required,http_url"); err != nil {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
