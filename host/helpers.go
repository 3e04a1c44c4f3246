package host

// Helper names a runtime function reached through Invoke.
type Helper string

const (
	HelperUnaryNot       Helper = "unary_not"
	HelperUnaryNegative  Helper = "unary_negative"
	HelperBinaryOp       Helper = "binary_op"
	HelperCompare        Helper = "compare"
	HelperIs             Helper = "is"
	HelperContains       Helper = "contains"
	HelperIsTrue         Helper = "is_true"
	HelperBuildTuple     Helper = "build_tuple"
	HelperBuildList      Helper = "build_list"
	HelperCall           Helper = "call"
	HelperCallMethod     Helper = "call_method"
	HelperGetAttr        Helper = "getattr"
	HelperGetMethod      Helper = "getmethod"
	HelperSetAttr        Helper = "setattr"
	HelperGetIter        Helper = "get_iter"
	HelperIterNext       Helper = "iter_next"
	HelperExceptionType  Helper = "exception_type"
	HelperExceptionTrace Helper = "exception_traceback"
	HelperExcMatches     Helper = "exc_matches"
	HelperMakeException  Helper = "make_exception"
	HelperMakeFrom       Helper = "make_exception_from"
	HelperExcLasti       Helper = "exc_lasti"
)

func (h Helper) takesArg() bool {
	switch h {
	case HelperBinaryOp, HelperCompare, HelperIs, HelperContains:
		return true
	}
	return false
}

// Null is pushed where a modern call sequence expects an empty method slot.
var Null = nullValue{}

type nullValue struct{}

func (nullValue) String() string { return "NULL" }
