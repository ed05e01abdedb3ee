package upload

import "errors"

// Failure carries the banner message for a failed run together with its
// cause.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Message + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(message string, err error) *Failure {
	return &Failure{Message: message, Err: err}
}

// MessageOf returns the banner message carried by err, or fallback when err
// is not a Failure.
func MessageOf(err error, fallback string) string {
	var f *Failure
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	return fallback
}
