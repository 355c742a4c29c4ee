package vm

import "errors"

// ErrInvalidOperand indicates a register index out of [0,4), or an
// operation payload that does not match its OpType's discipline (for
// example a CallOut built without a function). Op constructors reject this
// defensively at construction time rather than leaving it as undefined
// behavior for the interpreter or a back-end to trip over later.
var ErrInvalidOperand = errors.New("vm: invalid operand")
