package espresso

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/antibyte/espresso/pkg/logger"
)

// IndentUnit is the number of spaces that open one block level.
const IndentUnit = 4

// Console is the interpreter's view of the outside world.
type Console interface {
	// Emit writes one line of program output.
	Emit(text string) error
	// ReadInteger asks for a value for variable name and blocks until a valid
	// integer has been supplied.
	ReadInteger(name rune) (int, error)
	// Close releases the console. It is called once when a run ends.
	Close() error
}

// Interpreter runs one Espresso program. The program lines are never
// modified; the cursor is lineNum (0-based) plus blockDepth, which is always a
// multiple of IndentUnit.
type Interpreter struct {
	program    []string
	vars       *VariableStore
	console    Console
	cache      *StatementCache
	lineNum    int
	blockDepth int
	runID      string
	steps      int64
}

// NewInterpreter prepares a run of program against console.
func NewInterpreter(program []string, console Console) *Interpreter {
	return &Interpreter{
		program: program,
		vars:    NewVariableStore(),
		console: console,
	}
}

// SetStatementCache switches classification memoization on or off. GOTO loops
// revisit the same lines, so the cache mostly pays off there.
func (i *Interpreter) SetStatementCache(enabled bool) {
	if enabled {
		i.cache = NewStatementCache()
	} else {
		i.cache = nil
	}
}

// SetRunID tags log entries of this run.
func (i *Interpreter) SetRunID(id string) {
	i.runID = id
}

// Variables exposes the variable store, e.g. for inspecting state after a
// failed run.
func (i *Interpreter) Variables() *VariableStore {
	return i.vars
}

// Cursor returns the current 0-based line index and block depth.
func (i *Interpreter) Cursor() (lineNum, blockDepth int) {
	return i.lineNum, i.blockDepth
}

// Steps returns the number of statements dispatched so far.
func (i *Interpreter) Steps() int64 {
	return i.steps
}

// Execute runs the program from the first line until it falls off the end or
// a statement fails. The console is closed on every return path. A run cannot
// be resumed after an error.
func (i *Interpreter) Execute(ctx context.Context) (err error) {
	logger.Info(logger.AreaInterpreter, "run %s: starting, %d lines", i.runID, len(i.program))

	defer func() {
		if cerr := i.console.Close(); cerr != nil && err == nil {
			err = &ScriptError{Kind: KindIO, Message: "closing console: " + cerr.Error(), Cause: cerr}
		}
		if err != nil {
			logger.Info(logger.AreaInterpreter, "run %s: aborted after %d steps: %v", i.runID, i.steps, err)
		} else {
			logger.Info(logger.AreaInterpreter, "run %s: finished after %d steps", i.runID, i.steps)
		}
	}()

	for i.lineNum < len(i.program) {
		select {
		case <-ctx.Done():
			return i.fail(ctx, ctx.Err())
		default:
		}

		line := i.program[i.lineNum]
		if strings.TrimSpace(line) == "" {
			i.lineNum++
			continue
		}

		depth := leadingSpaces(line)
		if depth%IndentUnit != 0 {
			return i.fail(ctx, syntaxError("indentation of %d spaces is not a multiple of %d", depth, IndentUnit))
		}
		if depth < i.blockDepth {
			i.blockDepth = depth
		} else if depth > i.blockDepth {
			i.lineNum++
			continue
		}

		stmt, err := i.classify(line[i.blockDepth:])
		if err != nil {
			return i.fail(ctx, err)
		}
		jumped, err := i.dispatch(stmt)
		if err != nil {
			return i.fail(ctx, err)
		}
		i.steps++
		if !jumped {
			i.lineNum++
		}
	}
	return nil
}

func (i *Interpreter) classify(text string) (Statement, error) {
	if i.cache != nil {
		if stmt, ok := i.cache.Get(i.lineNum); ok {
			return stmt, nil
		}
	}
	stmt, err := Classify(text)
	if err != nil {
		return Statement{}, err
	}
	if i.cache != nil {
		i.cache.Put(i.lineNum, stmt)
	}
	return stmt, nil
}

// dispatch executes one statement and reports whether it moved the cursor.
func (i *Interpreter) dispatch(stmt Statement) (bool, error) {
	logger.Debug(logger.AreaInterpreter, "run %s: line %d %s %q", i.runID, i.lineNum+1, stmt.Kind, stmt.Expr)

	switch stmt.Kind {
	case StmtInput:
		if _, ok := slotIndex(stmt.Target); !ok {
			return false, newError(KindInvalidIdentifier, "%q is not a variable name (use a-z or A-Z)", stmt.Target)
		}
		v, err := i.console.ReadInteger(stmt.Target)
		if err != nil {
			return false, err
		}
		return false, i.vars.Set(stmt.Target, v)

	case StmtAssignment:
		v, err := EvalArithmetic(stmt.Expr, i.vars)
		if err != nil {
			return false, err
		}
		return false, i.vars.Set(stmt.Target, v)

	case StmtOutput:
		v, err := EvalArithmetic(stmt.Expr, i.vars)
		if err != nil {
			return false, err
		}
		return false, i.console.Emit(strconv.Itoa(v))

	case StmtIf:
		ok, err := EvalCondition(stmt.Expr, i.vars)
		if err != nil {
			return false, err
		}
		if ok {
			i.blockDepth += IndentUnit
		}
		return false, nil

	case StmtGoto:
		n, err := EvalArithmetic(stmt.Expr, i.vars)
		if err != nil {
			return false, err
		}
		if err := i.checkJump(n); err != nil {
			return false, err
		}
		i.lineNum = n - 1
		return true, nil
	}
	return false, syntaxError("unrecognized statement")
}

// checkJump validates a 1-based GOTO target. len(program)+1 ends the run.
func (i *Interpreter) checkJump(n int) error {
	if n < 1 || n > len(i.program)+1 {
		return syntaxError("goto %d is outside the program (lines 1-%d)", n, len(i.program))
	}
	if n > len(i.program) {
		return nil
	}
	target := i.program[n-1]
	if strings.TrimSpace(target) == "" {
		return nil
	}
	if d := leadingSpaces(target); d > i.blockDepth {
		return syntaxError("goto %d jumps into a block nested deeper than the current one", n)
	}
	return nil
}

// fail attributes err to the current line. Any failure observed after the
// context was cancelled is reported as Cancelled.
func (i *Interpreter) fail(ctx context.Context, err error) *ScriptError {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		var se *ScriptError
		if !errors.As(err, &se) || se.Kind == KindIO {
			err = &ScriptError{Kind: KindCancelled, Message: "execution cancelled", Cause: err}
		}
	}
	var source string
	if i.lineNum < len(i.program) {
		source = i.program[i.lineNum]
	}
	return atLine(err, i.lineNum, source)
}

func leadingSpaces(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}
