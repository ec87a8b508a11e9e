package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

var (
	errDuplicateRequest = errors.New("duplicate request")
	errInvalidBody      = domain.NewValidationError("invalid body")
	errEmptyPatch       = domain.NewValidationError("nothing to update")
)

// classifyError maps a handler error to the status code and body of the
// failure envelope.
func classifyError(err error) (int, errorBody) {
	var (
		httpErr  *echo.HTTPError
		vErrs    validator.ValidationErrors
		domainVE *domain.ValidationError
	)
	switch {
	case errors.As(err, &httpErr):
		if httpErr.Internal != nil {
			var inner *echo.HTTPError
			if errors.As(httpErr.Internal, &inner) {
				httpErr = inner
			}
		}
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = fmt.Sprint(httpErr.Message)
		}
		return httpErr.Code, errorBody{Message: msg}
	case errors.As(err, &vErrs):
		fields := make(map[string]string, len(vErrs))
		for _, fe := range vErrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return http.StatusBadRequest, errorBody{Message: "validation failed", Fields: fields}
	case errors.As(err, &domainVE):
		body := errorBody{Message: domainVE.Message}
		if len(domainVE.Fields) > 0 {
			body.Fields = make(map[string]string, len(domainVE.Fields))
			for _, f := range domainVE.Fields {
				body.Fields[f.Field] = f.Error
			}
		}
		if body.Message == "" {
			body.Message = "validation failed"
		}
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Message: "not found"}
	case errors.Is(err, errDuplicateRequest):
		return http.StatusConflict, errorBody{Message: "duplicate request"}
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, errorBody{Message: "concurrent update, retry the request"}
	default:
		return http.StatusInternalServerError, errorBody{Message: http.StatusText(http.StatusInternalServerError)}
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "datetime":
		return "must be a date formatted as " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "hexcolor":
		return "must be a hex color"
	default:
		return "failed on " + fe.Tag()
	}
}

// NewHTTPErrorHandler renders every error as a failure envelope. Server
// errors are logged and their details withheld from the client.
func NewHTTPErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, body := classifyError(err)
		if code >= http.StatusInternalServerError && logger != nil {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"route":  c.Path(),
			}).Error("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, envelope{Success: false, Error: &body})
		}
		if err != nil && logger != nil {
			logger.WithError(err).Error("write error response")
		}
	}
}
