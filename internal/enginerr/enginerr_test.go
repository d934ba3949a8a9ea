package enginerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"parse", Parsef("near %q", "x"), ErrParse},
		{"not found db", NotFoundf("unknown database %q", "x"), ErrBadDB},
		{"not found table", NotFoundf("unknown table %q", "x"), ErrBadTable},
		{"access denied", AccessDeniedf("SELECT denied"), ErrAccessDenied},
		{"not supported", NotSupportedf("FULL OUTER JOIN"), ErrNotSupportedYet},
		{"invalid", Invalidf("duplicate entry"), ErrWrongValueCount},
		{"lock wait", LockWaitTimeoutf("row locked"), ErrLockWaitTimeout},
		{"unknown sysvar", &UnknownSystemVariableError{Name: "foo"}, ErrUnknownSystemVariable},
		{"generic", assertErr{}, ErrUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyCode(tc.err))
		})
	}
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
