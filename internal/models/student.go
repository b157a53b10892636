package models

import "time"

// Student is the read shape the engine needs: timezone for lifecycle
// decisions and the assigned primary teacher for availability ranking.
type Student struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Timezone  string    `db:"timezone" json:"timezone"`
	TeacherID *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
