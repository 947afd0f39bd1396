package taskstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// nextID computes the next sequential id for the given day, scanning
// existing ids sharing the same date prefix. Ids take the form
// TASK-YYYY-MM-DD-NNN and are unique within a project, so the scan is
// restricted to tasks belonging to project.
func nextID(now time.Time, existing map[string]*Task, project string) string {
	datePrefix := "TASK-" + now.UTC().Format("2006-01-02")
	max := 0
	for _, t := range existing {
		if t.Project != project {
			continue
		}
		if !strings.HasPrefix(t.ID, datePrefix+"-") {
			continue
		}
		seqStr := strings.TrimPrefix(t.ID, datePrefix+"-")
		if seq, err := strconv.Atoi(seqStr); err == nil && seq > max {
			max = seq
		}
	}
	return fmt.Sprintf("%s-%03d", datePrefix, max+1)
}
