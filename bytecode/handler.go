package bytecode

import "fmt"

// ExceptionTableEntry is one row of a modern dialect exception table.
// Instructions whose offsets fall in [Start, End) are protected; an exception
// raised by one of them truncates the operand stack to Depth, optionally
// pushes the offset of the raising instruction (Lasti), pushes the exception
// and continues at Target.
type ExceptionTableEntry struct {
	Start  int  `json:"start" yaml:"start" cbor:"1,keyasint"`
	End    int  `json:"end" yaml:"end" cbor:"2,keyasint"`
	Target int  `json:"target" yaml:"target" cbor:"3,keyasint"`
	Depth  int  `json:"depth" yaml:"depth" cbor:"4,keyasint"`
	Lasti  bool `json:"lasti,omitempty" yaml:"lasti,omitempty" cbor:"5,keyasint,omitempty"`
}

// Contains reports whether offset is protected by the entry.
func (e ExceptionTableEntry) Contains(offset int) bool {
	return offset >= e.Start && offset < e.End
}

func (e ExceptionTableEntry) String() string {
	lasti := ""
	if e.Lasti {
		lasti = " lasti"
	}
	return fmt.Sprintf("%d to %d -> %d [%d]%s", e.Start, e.End, e.Target, e.Depth, lasti)
}
