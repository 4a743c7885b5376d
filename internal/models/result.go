package models

// FileStatus is the outcome of processing one source file
type FileStatus string

const (
	StatusConverted FileStatus = "converted"
	StatusSkipped   FileStatus = "skipped"
	StatusFailed    FileStatus = "failed"
	StatusDeleted   FileStatus = "deleted"
	StatusKept      FileStatus = "kept"
	StatusDryRun    FileStatus = "dry_run"
)

// FileResult reports what happened to a single source file
type FileResult struct {
	Path      string     `json:"path"`
	Target    string     `json:"target,omitempty"`
	CoverPath string     `json:"cover_path,omitempty"`
	Status    FileStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	Err       error      `json:"-"`
}

// Failed reports whether the file ended in an error
func (r FileResult) Failed() bool {
	return r.Status == StatusFailed
}
