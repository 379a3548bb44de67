package async

// DefaultCeiling is the admission ceiling when configuration sets none.
const DefaultCeiling = 3

// CountActive counts jobs that are queued or processing.
func CountActive(jobs []*Job) int {
	n := 0
	for _, j := range jobs {
		if j != nil && j.Status.IsActive() {
			n++
		}
	}
	return n
}

// CanAdmit reports whether one more job fits under the ceiling given the
// current job collection. Only queued and processing jobs count.
func CanAdmit(jobs []*Job, ceiling int) bool {
	return CountActive(jobs) < ceiling
}
