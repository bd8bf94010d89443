package forum

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

var (
	categoryTag  = "forumcategory"
	categoryText = "unknown forum category"
)

// InitValidators registers the forum validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)
}

func categoryValidation(fl validator.FieldLevel) bool {
	cat := fl.Field().String()
	for _, c := range Categories {
		if c == cat {
			return true
		}
	}
	return false
}
