package failure

import "fmt"

// Error is a terminal download failure as seen by the HTTP boundary.
type Error struct {
	kind     Kind
	Attempts int
	// Message is the last raw diagnostic from the extractor, if any.
	Message string
	Err     error
}

// NewError builds a terminal failure of the given kind.
func NewError(kind Kind, attempts int, message string, err error) *Error {
	return &Error{kind: kind, Attempts: attempts, Message: message, Err: err}
}

// Kind returns the failure classification.
func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s after %d attempt(s): %v", e.kind, e.Attempts, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s after %d attempt(s): %s", e.kind, e.Attempts, e.Message)
	default:
		return fmt.Sprintf("%s after %d attempt(s)", e.kind, e.Attempts)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the caller-visible message. Only Generic failures expose the
// raw diagnostic.
func (e *Error) Detail() string {
	switch e.kind {
	case Timeout:
		return "Download timeout - video may be too long"
	case BotDetection, RateLimited:
		return "YouTube is rate limiting or blocking automated requests. Please try again in a few minutes."
	case ConversionToolMissing:
		return "Audio conversion failed. Please install ffmpeg: https://ffmpeg.org/download.html"
	case SSLError:
		return "Secure connection to YouTube failed. Please try again later."
	case Generic:
		return fmt.Sprintf("Failed to download audio after %d attempt(s): %s", e.Attempts, e.Message)
	default:
		if e.Err != nil {
			return fmt.Sprintf("Unexpected error: %v", e.Err)
		}
		return "Unexpected error"
	}
}
