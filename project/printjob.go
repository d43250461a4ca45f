package project

import (
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"
)

// PrintJob tracks one M32 subprogram for log and status reporting.
type PrintJob struct {
	Id      uuid.UUID
	Path    string
	Started time.Time
}

func NewPrintJob(path string) *PrintJob {
	return &PrintJob{
		Id:      uuid.NewV4(),
		Path:    path,
		Started: time.Now(),
	}
}

func (j *PrintJob) Describe() string {
	return fmt.Sprintf("job %s (%s, started %s)", j.Id, j.Path, j.Started.Format(time.RFC3339))
}
