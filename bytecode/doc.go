// Package bytecode provides immutable representations of decoded guest
// functions.
//
// The types in this package are the translator's input: a [Function] holds
// the instruction sequence of one guest function together with its constant
// pool, name tables and, for dialects that have one, its exception table.
// Decoding raw guest bytes is not this package's job; a decoder produces
// [Instruction] values with absolute jump targets and hands them to
// [NewFunction].
//
// # Immutability Guarantees
//
// All types in this package are immutable after construction:
//
//   - No mutation methods exist on any type
//   - All fields of Function are unexported
//   - Constructors copy input slices to prevent caller mutation
//   - Accessors return values, never internal slices
//
// Index-based access is used for all collections:
//
//	fn.InstructionAt(0)
//	fn.ConstantAt(i)
//	fn.ExceptionEntryAt(j)
//
// A Function can therefore be shared by any number of concurrent
// translations.
package bytecode
