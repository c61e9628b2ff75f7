package store

import "errors"

// ErrStorage wraps any I/O or constraint failure from the persistence
// layer. The orchestrator treats every error satisfying errors.Is(err,
// ErrStorage) as fatal: on startup it aborts before serving, in steady
// state it exits the process.
var ErrStorage = errors.New("storage error")

// ErrNotFound is returned by single-row lookups (session, task, group)
// when no matching row exists. Callers treat it as "absent", not fatal.
var ErrNotFound = errors.New("not found")

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrStorage, err)
}
