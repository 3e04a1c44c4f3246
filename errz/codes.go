package errz

// ErrorCode is a stable identifier for a class of translation failure.
// Codes in the E4xxx range belong to translation; the numbering continues the
// E1xxx (parse), E2xxx (compile) and E3xxx (runtime) ranges of the guest
// toolchain.
type ErrorCode string

const (
	E4001 ErrorCode = "E4001" // Stack underflow
	E4002 ErrorCode = "E4002" // Stack shape conflict
	E4003 ErrorCode = "E4003" // Malformed exception region
	E4004 ErrorCode = "E4004" // Unsupported guest version
	E4005 ErrorCode = "E4005" // Invalid instruction
)

var codeDescriptions = map[ErrorCode]string{
	E4001: "stack underflow",
	E4002: "stack shape conflict",
	E4003: "malformed exception region",
	E4004: "unsupported guest version",
	E4005: "invalid instruction",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}
