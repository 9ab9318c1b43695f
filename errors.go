package rexdb

import (
	"errors"

	"github.com/hupe1980/rexdb/model"
)

// IsNotFound reports whether err means a missing document, namespace
// or metadata key.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
func IsNotFound(err error) bool {
	return hasCode(err, model.CodeNotFound)
}

// IsConflict reports whether err means a uniqueness or insert
// conflict.
func IsConflict(err error) bool {
	return hasCode(err, model.CodeConflict)
}

// IsParams reports whether err was caused by invalid query or index
// parameters.
func IsParams(err error) bool {
	return hasCode(err, model.CodeParams)
}

func hasCode(err error, code model.ErrorCode) bool {
	var me *model.Error
	return errors.As(err, &me) && me.Code() == code
}
