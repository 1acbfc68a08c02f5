package cmn

import "fmt"

// Assert panics when cond is false. It marks an invariant violation - a
// programming error - as opposed to a runtime condition that callers are
// expected to handle via the typed errors in errors.go.
func Assert(cond bool, args ...interface{}) {
	if cond {
		return
	}
	if len(args) == 0 {
		panic("assertion failed")
	}
	panic(fmt.Sprintln(args...))
}

// AssertNoErr panics if err is non-nil. Used at call sites where the error
// can only originate from a prior Assert having been violated elsewhere.
func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
