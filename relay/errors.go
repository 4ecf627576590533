package relay

import (
	"errors"
	"fmt"
)

// BizError is an expected outcome of the bridge domain, e.g. a parcel the
// shadow has not produced yet. It is reported quietly and never alerts.
type BizError struct {
	msg string
	err error
}

func NewBizError(format string, args ...interface{}) error {
	return &BizError{msg: fmt.Sprintf(format, args...)}
}

// AsBizError marks err as a business error, keeping it in the chain.
func AsBizError(err error) error {
	if err == nil {
		return nil
	}
	return &BizError{msg: err.Error(), err: err}
}

func (e *BizError) Error() string {
	return e.msg
}

func (e *BizError) Unwrap() error {
	return e.err
}

func IsBizError(err error) bool {
	var biz *BizError
	return errors.As(err, &biz)
}
