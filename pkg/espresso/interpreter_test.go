package espresso

import (
	"context"
	"errors"
	"io"
	"strings"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func lines(src string) []string {
	return strings.Split(strings.TrimPrefix(src, "\n"), "\n")
}

var _ = Describe("Interpreter", func() {
	var (
		mockCtrl    *gomock.Controller
		mockConsole *MockConsole
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		mockConsole = NewMockConsole(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectOutput := func(values ...string) {
		calls := make([]*gomock.Call, 0, len(values)+1)
		for _, v := range values {
			calls = append(calls, mockConsole.EXPECT().Emit(v).Return(nil))
		}
		calls = append(calls, mockConsole.EXPECT().Close().Return(nil))
		gomock.InOrder(calls...)
	}

	run := func(src string) (*Interpreter, error) {
		interp := NewInterpreter(lines(src), mockConsole)
		return interp, interp.Execute(context.Background())
	}

	expectFailure := func(err error, sentinel error, line int) *ScriptError {
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, sentinel)).To(BeTrue(), "got %v", err)
		var se *ScriptError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Line).To(Equal(line))
		return se
	}

	It("should evaluate with operator precedence", func() {
		expectOutput("20", "14")

		_, err := run(`
x = ( 2 + 3 ) * 4
print x
print 2 + 3 * 4`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should run an empty program", func() {
		mockConsole.EXPECT().Close().Return(nil)

		interp := NewInterpreter(nil, mockConsole)

		Expect(interp.Execute(context.Background())).To(Succeed())
	})

	It("should store input values", func() {
		gomock.InOrder(
			mockConsole.EXPECT().ReadInteger('n').Return(7, nil),
			mockConsole.EXPECT().Emit("14").Return(nil),
			mockConsole.EXPECT().Close().Return(nil),
		)

		interp, err := run(`
input n
print n * 2`)

		Expect(err).NotTo(HaveOccurred())
		Expect(interp.Variables().Snapshot()).To(Equal(map[rune]int{'n': 7}))
	})

	It("should skip the block of a false condition", func() {
		expectOutput("3")

		_, err := run(`
x = 1
if x > 1
    print 2
print 3`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should enter nested blocks and leave them by dedenting", func() {
		expectOutput("1", "3", "4")

		_, err := run(`
x = 1
if x == 1
    print 1
    if x > 5
        print 2
    print 3
print 4`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should close several blocks with one dedent", func() {
		expectOutput("2", "3")

		interp, err := run(`
x = 1
if x == 1
    if x < 2
        print 2
print 3`)

		Expect(err).NotTo(HaveOccurred())
		_, depth := interp.Cursor()
		Expect(depth).To(Equal(0))
	})

	It("should loop with goto", func() {
		expectOutput("1", "2", "3", "100")

		_, err := run(`
i = 0
i = i + 1
print i
if i < 3
    goto 2
print 100`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should compute a goto target", func() {
		expectOutput("5")

		_, err := run(`
t = 2
goto t * 2
print 1
print 5`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should ignore blank lines", func() {
		expectOutput("1", "2")

		_, err := run(`
x = 1
if x == 2

    print 9

print 1

print 2`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should end the run on goto past the last line", func() {
		expectOutput()

		_, err := run(`
goto 3
print 1`)

		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject goto outside the program", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`
x = 1
goto 0`)

		se := expectFailure(err, ErrInvalidSyntax, 2)
		Expect(se.Source).To(Equal("goto 0"))
	})

	It("should reject goto into a deeper block", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`
goto 3
if 1 == 2
    print 1`)

		expectFailure(err, ErrInvalidSyntax, 1)
	})

	It("should keep earlier assignments after division by zero", func() {
		mockConsole.EXPECT().Close().Return(nil)

		interp, err := run(`
a = 5
b = a / 0
print a`)

		expectFailure(err, ErrArithmetic, 2)
		Expect(interp.Variables().Defined('a')).To(BeTrue())
		Expect(interp.Variables().Defined('b')).To(BeFalse())
		lineNum, _ := interp.Cursor()
		Expect(lineNum).To(Equal(1))
	})

	It("should report undefined variables", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`print y`)

		se := expectFailure(err, ErrUndefinedVariable, 1)
		Expect(se.Source).To(Equal("print y"))
	})

	It("should reject a NUL character inside an expression", func() {
		mockConsole.EXPECT().Close().Return(nil)

		interp := NewInterpreter([]string{"print 1\x00 garbage )))"}, mockConsole)
		err := interp.Execute(context.Background())

		expectFailure(err, ErrInvalidSyntax, 1)
	})

	It("should report integer overflow", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`
x = 9223372036854775807
print x + 1`)

		expectFailure(err, ErrArithmetic, 2)
	})

	It("should report bad indentation with its line", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`
x = 1
  print x`)

		expectFailure(err, ErrInvalidSyntax, 2)
	})

	It("should check indentation of skipped lines", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`
if 1 == 2
      print 1`)

		expectFailure(err, ErrInvalidSyntax, 2)
	})

	It("should report invalid identifiers in input", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`input 1`)

		expectFailure(err, ErrInvalidIdentifier, 1)
	})

	It("should report comparisons outside conditions", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`x = 1 < 2`)

		expectFailure(err, ErrOperator, 1)
	})

	It("should suggest keywords for misspelled statements", func() {
		mockConsole.EXPECT().Close().Return(nil)

		_, err := run(`prnt 5`)

		se := expectFailure(err, ErrInvalidSyntax, 1)
		Expect(se.Message).To(ContainSubstring("did you mean print?"))
	})

	It("should turn console failures into IOError", func() {
		gomock.InOrder(
			mockConsole.EXPECT().Emit("1").Return(io.ErrClosedPipe),
			mockConsole.EXPECT().Close().Return(nil),
		)

		_, err := run(`print 1`)

		se := expectFailure(err, ErrIO, 1)
		Expect(errors.Is(se, io.ErrClosedPipe)).To(BeTrue())
	})

	It("should report a failing close after a clean run", func() {
		mockConsole.EXPECT().Close().Return(io.ErrClosedPipe)

		_, err := run(`x = 1`)

		Expect(errors.Is(err, ErrIO)).To(BeTrue())
	})

	It("should stop when the context is cancelled", func() {
		mockConsole.EXPECT().Close().Return(nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		interp := NewInterpreter(lines(`print 1`), mockConsole)
		err := interp.Execute(ctx)

		Expect(errors.Is(err, ErrCancelled)).To(BeTrue(), "got %v", err)
	})

	It("should report cancellation during input", func() {
		ctx, cancel := context.WithCancel(context.Background())
		gomock.InOrder(
			mockConsole.EXPECT().ReadInteger('x').DoAndReturn(func(rune) (int, error) {
				cancel()
				return 0, ctx.Err()
			}),
			mockConsole.EXPECT().Close().Return(nil),
		)

		interp := NewInterpreter(lines(`input x`), mockConsole)
		err := interp.Execute(ctx)

		expectFailure(err, ErrCancelled, 1)
	})

	It("should reuse classifications when the cache is on", func() {
		expectOutput("1", "2", "3", "100")

		interp := NewInterpreter(lines(`
i = 0
i = i + 1
print i
if i < 3
    goto 2
print 100`), mockConsole)
		interp.SetStatementCache(true)

		Expect(interp.Execute(context.Background())).To(Succeed())
		hits, _ := interp.cache.Stats()
		Expect(hits).To(BeNumerically(">", 0))
		Expect(interp.Steps()).To(BeNumerically(">", 6))
	})
})
