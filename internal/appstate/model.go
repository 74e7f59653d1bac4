package appstate

import "time"

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool { return r == RoleTeacher || r == RoleStudent }

// Session: ルーティング判定にだけ使うフラグ（暗号学的な意味は持たせない）
type Session struct {
	Authenticated bool   `json:"is_authenticated"`
	Role          Role   `json:"user_role,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	Name          string `json:"name,omitempty"`
}

const (
	ScanStatusSuccess       = "success"
	ScanStatusAlreadyMarked = "already_marked"
	ScanStatusError         = "error"
)

// ScanResult は1回の出席スキャンの結果。作成後は変更しない
type ScanResult struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	Subject     string     `json:"subject,omitempty"`
	ClassID     *int       `json:"class_id,omitempty"`
	MarkedAt    *time.Time `json:"marked_at,omitempty"`
	StudentName string     `json:"student_name,omitempty"`
	ScannedAt   time.Time  `json:"scanned_at"`
}
