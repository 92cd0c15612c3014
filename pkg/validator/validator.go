package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"multisig-core/pkg/near"
)

// Init 在 Gin 的校验引擎上注册自定义规则
func Init() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin 校验引擎不是 go-playground/validator")
	}
	return Register(v)
}

// Register 注册 near_account / near_pubkey 规则
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("near_account", func(fl validator.FieldLevel) bool {
		return IsAccountID(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("near_pubkey", func(fl validator.FieldLevel) bool {
		_, err := near.ParsePublicKey(fl.Field().String())
		return err == nil
	})
}

// IsAccountID 账户名: 2-64 位，小写字母数字，以 . - _ 分隔，分隔符不能连续或位于首尾
func IsAccountID(id string) bool {
	if len(id) < 2 || len(id) > 64 {
		return false
	}
	prevSep := true
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case c == '.' || c == '-' || c == '_':
			if prevSep {
				return false
			}
			prevSep = true
		default:
			return false
		}
	}
	return !prevSep
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "请求参数错误"
	}
	var errMsgs []string
	for _, e := range validationErrors {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 至少为 %s", field, param))
		case "max":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不能超过 %s", field, param))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
		case "near_account":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不是合法的账户名", field))
		case "near_pubkey":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不是合法的公钥", field))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, e.Tag()))
		}
	}
	return strings.Join(errMsgs, "; ")
}
