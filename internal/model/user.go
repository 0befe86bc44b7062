package model

// UserRole 令牌中携带的身份，用户体系由外部认证服务维护
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)
