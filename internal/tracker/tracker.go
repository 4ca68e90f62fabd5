package tracker

// Tracker persists the supervisor's belief of which pid runs each service.
// Implementations must be safe for concurrent use across distinct service
// names; callers never update the same name concurrently.
//
// The existence of a record is equivalent to "the tracker believes this
// service is running": Record overwrites, Forget is idempotent.
type Tracker interface {
	// Record stores pid as the current process for the named service,
	// replacing any previous record.
	Record(name string, pid int) error
	// Lookup returns the recorded pid, ok=false when no record exists.
	Lookup(name string) (pid int, ok bool, err error)
	// Forget removes the record. Removing an absent record is not an error.
	Forget(name string) error
}
