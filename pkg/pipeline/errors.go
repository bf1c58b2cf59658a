package pipeline

import (
	"fmt"
)

// DirtyTreeError aborts a release before any artifact is produced when the
// working tree has uncommitted changes the user declined to commit.
type DirtyTreeError struct {
	Status string
}

func (e *DirtyTreeError) Error() string {
	return fmt.Sprintf("working tree has uncommitted changes:\n%s", e.Status)
}

// TagExistsError is returned before anything is pushed when the release tag
// is already present, so re-running the same release never clobbers it.
type TagExistsError struct {
	Tag string
}

func (e *TagExistsError) Error() string {
	return fmt.Sprintf("tag %s already exists", e.Tag)
}
