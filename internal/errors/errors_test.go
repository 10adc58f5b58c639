package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordError(t *testing.T) {
	err := NewRecordError("reports.json", 7, "", ErrMalformedRecord)
	assert.Equal(t, "reports.json:7: malformed record", err.Error())
	assert.True(t, errors.Is(err, ErrMalformedRecord))

	withID := NewRecordError("reports.json", 9, "abc", ErrNoScanData)
	assert.Equal(t, "reports.json:9: sample abc: no scan data", withID.Error())

	wrapped := fmt.Errorf("reading: %w", withID)
	var recErr *RecordError
	assert.True(t, errors.As(wrapped, &recErr))
	assert.Equal(t, 9, recErr.Line)
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("hash", "unknown hash type")
	assert.Equal(t, "invalid configuration for 'hash': unknown hash type", err.Error())
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.False(t, errors.Is(err, ErrNoScanData))

	noField := NewConfigError("", "no input given")
	assert.Equal(t, "invalid configuration: no input given", noField.Error())
}

func TestPanicError(t *testing.T) {
	err := &PanicError{Value: "index out of range"}
	assert.True(t, errors.Is(err, ErrSampleFailed))
	assert.Contains(t, err.Error(), "index out of range")
}
