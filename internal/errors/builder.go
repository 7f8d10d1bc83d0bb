package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

const detailsPrefix = "__json__:"

// ErrorBuilder chains hints and details onto an error. It is not an error
// itself: every chain ends with Mark, which attaches the sentinel callers test for.
type ErrorBuilder struct {
	err error
}

// NewError starts a new error builder chain
func NewError(msg string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(msg)}
}

// WithError starts a builder chain with an existing error
func WithError(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// WithHint adds a message meant for the merchant or client, never internals
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

func (b *ErrorBuilder) WithHintf(format string, args ...any) *ErrorBuilder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails attaches ids such as the price change or sweep id.
// They survive redaction and are read back by ReportableDetails.
func (b *ErrorBuilder) WithReportableDetails(details map[string]any) *ErrorBuilder {
	if len(details) == 0 {
		return b
	}
	marshaled, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, detailsPrefix+"%s", errors.Safe(string(marshaled)))
	return b
}

// Mark ends the chain
func (b *ErrorBuilder) Mark(reference error) error {
	b.err = errors.Mark(b.err, reference)
	return b.err
}

// ReportableDetails merges every detail map attached along err's chain.
// When a key repeats, the outermost value wins.
func ReportableDetails(err error) map[string]any {
	merged := map[string]any{}
	for _, payload := range errors.GetAllSafeDetails(err) {
		for _, detail := range payload.SafeDetails {
			raw, ok := strings.CutPrefix(detail, detailsPrefix)
			if !ok {
				continue
			}
			var details map[string]any
			if json.Unmarshal([]byte(raw), &details) != nil {
				continue
			}
			for k, v := range details {
				if _, seen := merged[k]; !seen {
					merged[k] = v
				}
			}
		}
	}
	return merged
}
