package models

const (
	RoleStudent = "student"
	RoleParent  = "parent"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

func ValidRole(r string) bool {
	switch r {
	case RoleStudent, RoleParent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Child is an entry in a parent account's children list. Children joined
// before a ticket carry this data as the ticket's StudentInfo snapshot.
type Child struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Grade     string `json:"grade"`
}
