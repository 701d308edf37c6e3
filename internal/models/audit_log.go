package models

import "time"

type AuditAction string

const (
	AuditUserRegister AuditAction = "user.register"
	AuditLogin        AuditAction = "auth.login"
	AuditLoginFailed  AuditAction = "auth.login_failed"
	AuditRefresh      AuditAction = "auth.refresh"
	AuditLogout       AuditAction = "auth.logout"
	AuditTokenReuse   AuditAction = "auth.token_reuse"
)

const (
	AuditEntityUser    = "user"
	AuditEntityRefresh = "refresh_token"

	maxUserAgentLength = 500
	maxIPAddressLength = 45
)

// AuditLog is append-only; nothing updates or deletes it.
type AuditLog struct {
	ID         int64
	UserID     *int64
	Action     AuditAction
	EntityType string
	EntityID   *string
	Metadata   *string
	IPAddress  *string
	UserAgent  *string
	CreatedAt  time.Time
}

// WithClient copies request origin into the entry, trimmed to column sizes.
func (a AuditLog) WithClient(meta ClientMeta) AuditLog {
	if meta.IPAddress != "" {
		ip := truncate(meta.IPAddress, maxIPAddressLength)
		a.IPAddress = &ip
	}
	if meta.UserAgent != "" {
		ua := truncate(meta.UserAgent, maxUserAgentLength)
		a.UserAgent = &ua
	}
	return a
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
