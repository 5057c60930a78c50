package fake

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// CheckLog returns a logger and a check function. When called, the function
// verifies that the logger printed the message.
func CheckLog(msg string) (zerolog.Logger, func(t *testing.T)) {
	buffer := new(bytes.Buffer)

	check := func(t *testing.T) {
		require.Contains(t, buffer.String(), fmt.Sprintf(`"%s"`, msg))
	}

	return zerolog.New(buffer), check
}

// BadWriter is a writer that always fails.
//
// - implements io.Writer
type BadWriter struct{}

// Write implements io.Writer. It returns the fake error.
func (BadWriter) Write([]byte) (int, error) {
	return 0, fakeErr
}
