package model

import "time"

// AdminLogin is one row of the admin login audit trail.
type AdminLogin struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Succeeded  bool      `json:"succeeded"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	LoginTime  time.Time `json:"login_time"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReminderResult summarises one overdue reminder run.
type ReminderResult struct {
	Overdue int `json:"overdue"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
