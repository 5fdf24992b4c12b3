package errutil

import (
	"fmt"
	"runtime/debug"
	"strconv"

	"github.com/pkg/errors"
)

// Scheduler error codes. A CodeError compares equal (via Is) to any other
// CodeError carrying the same code, so callers match on the sentinels below.
const (
	CodeQueueFull = 1001 + iota
	CodeBadPriority
	CodeBadThread
	CodeNoVirtualCore
	CodeNotFound
	CodePageFault
	CodeMisaligned
	CodeUnresolved
	CodeResolved
	CodeBadSymbol
	CodeNoInstance
	CodeBadConf
	CodeIdExhausted
)

type CodeError struct {
	code int
	text string
}

func NewWithCode(code int, text string) error {
	err := new(CodeError)
	err.code = code
	err.text = text
	return err
}

func (err *CodeError) Code() int {
	return err.code
}

func (err *CodeError) Error() string {
	return "[" + strconv.Itoa(err.code) + "]" + err.text
}

func (err *CodeError) Is(target error) bool {
	other, ok := target.(*CodeError)
	return ok && other.code == err.code
}

// CodeOf returns the code of the first CodeError in err's chain, or 0.
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 0
}

func New(text string) error {
	return errors.New(text)
}

func Extend(text string, err error) error {
	return errors.Wrap(err, text)
}

func Extendf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

func ExtendWithCode(code int, text string, err error) error {
	return errors.WithMessage(NewWithCode(code, text), err.Error())
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Try(do func(), catch func(error)) {
	if do == nil {
		return
	}
	defer Catch(catch)
	do()
}

func Catch(catch func(error)) {
	if err := recover(); err != nil {
		errIns := errors.New(
			" :: Try-Catch :: \r" +
				fmt.Sprint(err) +
				"\r=============== - CallStackInfo - =============== \r" +
				string(debug.Stack()))
		if catch == nil {
			ReportError(errIns)
			return
		}
		catch(errIns)
	}
}

var _customErr func(error) = nil

func CustomErrFunc(custom func(error)) {
	_customErr = custom
}

func ReportError(err error) {
	if _customErr != nil {
		_customErr(err)
	} else {
		fmt.Println("[ERROR]::" + err.Error())
	}
}
