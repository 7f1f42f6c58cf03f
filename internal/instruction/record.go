// Package instruction reads batch files of customer trade instructions.
//
// A batch file is UTF-8, line-delimited and comma-separated. The first line
// is a header and is ignored; every following non-blank line is
//
//	customer_id,operation,amount,isin,value_date
//
// The reader is lazy and performs no database access.
package instruction

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/model"
)

// FieldCount is the number of comma-separated fields in a record.
const FieldCount = 5

// MaxAmountScale is the maximum number of fractional digits in amount.
const MaxAmountScale = 8

// amountRegex accepts plain non-negative decimals: no sign, no exponent.
var amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ErrMalformedRecord matches every *MalformedRecordError via errors.Is.
var ErrMalformedRecord = errors.New("instruction: malformed record")

// MalformedRecordError reports a record that could not be parsed or read.
// Line is 1-based; the header is line 1. Err is set when the source itself
// failed.
type MalformedRecordError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("MalformedRecord: line %d: %s", e.Line, e.Reason)
}

// Kind returns the taxonomy name of the error.
func (e *MalformedRecordError) Kind() string { return "MalformedRecord" }

func (e *MalformedRecordError) Is(target error) bool { return target == ErrMalformedRecord }

func (e *MalformedRecordError) Unwrap() error { return e.Err }

func malformed(line int, format string, args ...any) error {
	return &MalformedRecordError{Line: line, Reason: fmt.Sprintf(format, args...)}
}

// ParseRecord parses one data line into an Instruction.
func ParseRecord(line int, text string) (model.Instruction, error) {
	fields := strings.Split(text, ",")
	if len(fields) != FieldCount {
		return model.Instruction{}, malformed(line, "expected %d fields, got %d", FieldCount, len(fields))
	}

	customerID := fields[0]
	op := model.Operation(fields[1])
	amountStr := fields[2]
	isin := fields[3]
	dateStr := fields[4]

	if customerID == "" {
		return model.Instruction{}, malformed(line, "empty customer_id")
	}
	if !op.Valid() {
		return model.Instruction{}, malformed(line, "invalid operation %q (expected BUY or SELL)", fields[1])
	}

	if !amountRegex.MatchString(amountStr) {
		return model.Instruction{}, malformed(line, "invalid amount %q", amountStr)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return model.Instruction{}, malformed(line, "invalid amount %q: %v", amountStr, err)
	}
	if -amount.Exponent() > MaxAmountScale {
		return model.Instruction{}, malformed(line, "amount %q has more than %d fractional digits", amountStr, MaxAmountScale)
	}

	if isin == "" {
		return model.Instruction{}, malformed(line, "empty isin")
	}

	valueDate, err := model.ParseDate(dateStr)
	if err != nil {
		return model.Instruction{}, malformed(line, "invalid value_date %q (expected YYYY-MM-DD)", dateStr)
	}

	return model.Instruction{
		Line:       line,
		CustomerID: customerID,
		Operation:  op,
		Amount:     amount,
		ISIN:       isin,
		ValueDate:  valueDate,
	}, nil
}
