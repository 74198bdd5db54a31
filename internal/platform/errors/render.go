package errors

import (
	stderrors "errors"

	"github.com/standardsja/pms-sub000/internal/platform/errors/i18n"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = "en-US"

// UserMessage formats the user-facing message for an error using the i18n
// catalog for the given locale, defaulting to en-US.
// Non-domain errors render as a generic message.
func UserMessage(err error, locale string) string {
	if err == nil {
		return ""
	}
	if locale == "" {
		locale = DefaultLocale
	}

	var appErr *Error
	if stderrors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		return catalog.Format(string(appErr.Code), appErr.Metadata)
	}
	return "an unexpected error occurred"
}
