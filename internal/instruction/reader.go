package instruction

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/ffl/batch-ingester/internal/model"
)

// maxLineLength bounds a single record line.
const maxLineLength = 1 << 20

// Reader produces instructions one at a time from a batch source.
// It is finite and non-restartable: once it returns an error (including
// io.EOF) every later call returns the same error.
type Reader struct {
	sc     *bufio.Scanner
	line   int
	header bool
	err    error
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &Reader{sc: sc}
}

// Line returns the 1-based number of the last line consumed.
func (r *Reader) Line() int { return r.line }

// Next returns the next instruction, or io.EOF once the source is exhausted.
// Malformed lines and source read failures fail with a *MalformedRecordError.
func (r *Reader) Next() (model.Instruction, error) {
	if r.err != nil {
		return model.Instruction{}, r.err
	}

	if !r.header {
		if !r.scan() {
			if r.err == io.EOF {
				r.err = malformed(1, "missing header line")
			}
			return model.Instruction{}, r.err
		}
		r.header = true
	}

	for r.scan() {
		text := strings.TrimRight(r.sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		ins, err := ParseRecord(r.line, text)
		if err != nil {
			r.err = err
			return model.Instruction{}, err
		}
		return ins, nil
	}
	return model.Instruction{}, r.err
}

// scan advances one line. On exhaustion it records io.EOF or the scanner
// error in r.err and returns false.
func (r *Reader) scan() bool {
	if r.sc.Scan() {
		r.line++
		return true
	}
	err := r.sc.Err()
	switch {
	case err == nil:
		r.err = io.EOF
	case errors.Is(err, bufio.ErrTooLong):
		r.err = malformed(r.line+1, "line exceeds %d bytes", maxLineLength)
	default:
		r.err = &MalformedRecordError{Line: r.line + 1, Reason: fmt.Sprintf("read failed: %v", err), Err: err}
	}
	return false
}

// All returns the instructions as a lazy sequence. Iteration stops after the
// first error, which is yielded with a zero Instruction. A clean end of input
// yields nothing further.
func (r *Reader) All() iter.Seq2[model.Instruction, error] {
	return func(yield func(model.Instruction, error) bool) {
		for {
			ins, err := r.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(model.Instruction{}, err)
				return
			}
			if !yield(ins, nil) {
				return
			}
		}
	}
}

// Read is a convenience wrapper returning the instructions of src as a
// sequence.
func Read(src io.Reader) iter.Seq2[model.Instruction, error] {
	return NewReader(src).All()
}
