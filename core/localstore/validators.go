package localstore

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
)

var (
	collectionTag  = "collection"
	collectionText = "unknown collection"
)

// InitValidators registers the `collection` validation tag.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(collectionTag, collectionValidation)
	core.RegisterCustomTranslation(validate, translator, collectionTag, collectionText)
}

func collectionValidation(fl validator.FieldLevel) bool {
	return IsKnownCollection(fl.Field().String())
}
