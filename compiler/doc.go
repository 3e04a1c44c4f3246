// Package compiler translates guest bytecode functions into host routines.
//
// # Two-Pass Translation
//
// Translation runs in two passes over a function's instructions.
//
// Pass 1: analyze
//
// Walks every instruction reachable from the entry point, starting from an
// empty operand stack and the function's initial locals. Each instruction's
// stack effect is applied to an abstract stack model, and the resulting
// state flows along the instruction's edges: fallthrough, jumps and, for
// instructions that may raise inside a protected region, the edge to the
// region's handler. When two edges meet at one offset their states are
// merged; a merge that changes the recorded state puts the offset back on
// the worklist. The pass ends once no state changes.
//
// Exceptional edges truncate the stack to the region's entry depth and push
// the dialect's exception state: three tagged slots in the legacy dialect,
// and a single exception (with an optional lasti slot below it) in the
// modern one.
//
// Pass 2: emit
//
// Emits host operations in offset order. Each reachable handler gets a
// catch label with a prologue that rebuilds the guest's exception state
// from the exception the host runtime pushes. Instructions leaving a handler
// are checked against the depth recorded for the region they leave.
//
// # Dialects
//
//   - Legacy (below 3.11): SETUP_FINALLY and POP_BLOCK open and close
//     regions, and exceptions occupy type, value and traceback slots.
//   - Modern (3.11 and later): the exception table describes regions, and
//     exceptions occupy one slot.
//
// Independent functions may be translated concurrently with TranslateAll.
package compiler
