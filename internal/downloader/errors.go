package downloader

import "fmt"

// TransferError covers transport failures and incomplete-length downloads.
// The batch coordinator retries these on its outer loop.
type TransferError struct {
	URL      string
	Received int64
	Expected int64
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed (URL: %s, received: %d bytes, expected: %d bytes): %v",
		e.URL, e.Received, e.Expected, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ProcessError is a nonzero exit from the external remux step.
type ProcessError struct {
	Output string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("ffmpeg failed: %v: %s", e.Err, e.Output)
}

func (e *ProcessError) Unwrap() error { return e.Err }
