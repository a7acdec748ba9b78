package pipeline

import "fmt"

// StageError identifies the stage a pipeline run failed in. Err is the
// original cause, reachable through errors.Is and errors.As.
type StageError struct {
	Pipeline string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %s: %v", e.Pipeline, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FilesystemError reports a failed directory creation, listing, or copy.
type FilesystemError struct {
	Op   string // "ensure", "readdir", "copy"
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }
