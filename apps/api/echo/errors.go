package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/core/event"
	"github.com/trezcool/collegium/core/forum"
	"github.com/trezcool/collegium/core/localstore"
	"github.com/trezcool/collegium/core/resource"
	"github.com/trezcool/collegium/services/supabase"
	"github.com/trezcool/collegium/storage/localquery"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
	errNoRemote      = echo.NewHTTPError(http.StatusServiceUnavailable, "remote backend is not configured")
	errNoLocal       = echo.NewHTTPError(http.StatusServiceUnavailable, "local collections are not configured")

	// statusCodes maps the sentinel errors of the app to their http status.
	statusCodes = map[error]int{
		localstore.ErrNotFound:      http.StatusNotFound,
		event.ErrNotFound:           http.StatusNotFound,
		resource.ErrNotFound:        http.StatusNotFound,
		forum.ErrNotFound:           http.StatusNotFound,
		forum.ErrCommentNotFound:    http.StatusNotFound,
		localstore.ErrConflict:      http.StatusConflict,
		localstore.ErrInvalidRecord: http.StatusBadRequest,
		localstore.ErrInvalidName:   http.StatusBadRequest,
		localquery.ErrNotSingle:     http.StatusNotAcceptable,
		supabase.ErrNotConfigured:   http.StatusServiceUnavailable,
	}
)

// sentinelStatus returns the http status of a sentinel error.
// Errors of uncomparable types (eg: validator.ValidationErrors) cannot be map keys.
func sentinelStatus(err error) (int, bool) {
	if err == nil || !reflect.TypeOf(err).Comparable() {
		return 0, false
	}
	status, ok := statusCodes[err]
	return status, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if status, ok := sentinelStatus(cause); ok {
			cause = echo.NewHTTPError(status, cause.Error())
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *supabase.APIError:
			code = origErr.Status
			if code < http.StatusBadRequest {
				code = http.StatusBadGateway
			}
			message = echo.Map{"error": origErr.Message, "code": origErr.Code}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var person core.Person
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				person = claims.Person()
			}
			logger.Error(msg, errors.Wrap(err, msg), person)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
