// Package stack models the abstract operand stack and locals of a guest
// function at one program point.
//
// A [Metadata] value is persistent: pushing and popping share structure with
// the original, so a translator can keep one snapshot per instruction and
// per pending branch target without copying. Locals are copied only when
// written.
//
// Slots owned by an exception handler carry the 1-based id of that handler's
// region, which lets the translator check that a handler pops exactly what
// its entry pushed.
package stack
