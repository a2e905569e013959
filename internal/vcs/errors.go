package vcs

import "fmt"

// VCSError wraps clone, fetch, and resolve failures: authentication failure,
// unreachable remote, or an unresolvable ref. It is fatal to a run; no
// stages execute.
type VCSError struct {
	Op  string
	URL string
	Err error
}

func (e *VCSError) Error() string {
	return fmt.Sprintf("vcs %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *VCSError) Unwrap() error {
	return e.Err
}

func newVCSError(op, url string, err error) *VCSError {
	return &VCSError{Op: op, URL: url, Err: err}
}
