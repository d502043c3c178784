package flows

import "fmt"

type errorString string

func (e errorString) Error() string { return string(e) }

// joinDetail keeps sentinel matchable with errors.Is while adding context.
func joinDetail(sentinel error, detail string) error {
	if sentinel == nil {
		return errorString(detail)
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}
