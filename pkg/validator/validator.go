package validator

import (
	"log"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func RegisterGinValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		err := v.RegisterValidation("fingerprint", fingerprintValidator)
		if err != nil {
			log.Fatal("register fingerprint validator failed")
		}
	}
}

// Client-computed fingerprints travel as lowercase hex SHA-256 digests.
var fingerprintValidator validator.Func = func(fl validator.FieldLevel) bool {
	fingerprint := fl.Field().String()
	pattern := `^[0-9a-f]{64}$`
	matched, err := regexp.MatchString(pattern, fingerprint)
	if err != nil {
		return false
	}
	return matched
}
