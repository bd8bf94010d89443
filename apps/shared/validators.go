package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/event"
	"github.com/trezcool/collegium/core/forum"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/resource"
)

// NewValidator returns the validator of the apps, with the validation tags of every package registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	localstore.InitValidators(validate, translator)
	event.InitValidators(validate, translator)
	resource.InitValidators(validate, translator)
	forum.InitValidators(validate, translator)
	return validate, translator
}
