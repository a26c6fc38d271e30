package chain

import "fmt"

// IntegrityError reports the first record at which chain verification failed.
type IntegrityError struct {
	Index  int
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("chain integrity violation at record %d: %s", e.Index, e.Reason)
}

// TimestampViolationError reports a backdating attempt: a record whose
// timestamp precedes the current chain head.
type TimestampViolationError struct {
	Timestamp string
	Previous  string
}

func (e *TimestampViolationError) Error() string {
	return fmt.Sprintf("timestamp violation: %s precedes chain head %s (backdating attempt)", e.Timestamp, e.Previous)
}
