package service

import (
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/go-playground/validator/v10"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/apperrors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// check validates msg against its struct tags.
func check(msg any) error {
	if err := validate.Struct(msg); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			names := make([]string, 0, len(fields))
			for _, f := range fields {
				names = append(names, f.Field()+" ("+f.Tag()+")")
			}
			return apperrors.NewValidationError(apperrors.ReasonInvalid, "invalid fields: %s", strings.Join(names, ", "))
		}
		return apperrors.NewValidationError(apperrors.ReasonInvalid, "%v", err)
	}
	return nil
}

// CodeOf maps a domain error onto a connect code.
func CodeOf(err error) connect.Code {
	switch {
	case apperrors.IsValidation(err):
		return connect.CodeInvalidArgument
	case apperrors.IsState(err):
		return connect.CodeFailedPrecondition
	case apperrors.IsNotFound(err):
		return connect.CodeNotFound
	case apperrors.IsAuthorization(err):
		return connect.CodePermissionDenied
	case apperrors.IsTransport(err):
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// toConnectError wraps err with its connect code. Validation failures carry
// their reason in the reason metadata key.
func toConnectError(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}
	cerr = connect.NewError(CodeOf(err), err)
	if reason := apperrors.ReasonOf(err); reason != "" {
		cerr.Meta().Set(ReasonHeader, string(reason))
	}
	return cerr
}

// ReasonHeader carries the rejection reason of an InvalidArgument error.
const ReasonHeader = "Quiz-Reject-Reason"
