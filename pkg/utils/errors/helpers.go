package errors

import "errors"

// Is reports whether any error in err's chain matches target. It exists
// so callers of this package do not also need the standard errors
// package for matching coded sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsCode reports whether err carries the given error code anywhere in
// its chain.
func IsCode(err error, code int) bool {
	e := FromError(err)
	return e != nil && e.Code == code
}
