package records

import "context"

// AuditLogs returns the audit feed, newest first. At most MaxAuditEntries
// entries are kept.
func (s *Store) AuditLogs(ctx context.Context) []AuditLog {
	return list[AuditLog](ctx, s, KeyAuditLogs)
}

// RecentAuditLogs returns at most n of the newest audit entries.
func (s *Store) RecentAuditLogs(ctx context.Context, n int) []AuditLog {
	logs := s.AuditLogs(ctx)
	if n >= 0 && len(logs) > n {
		logs = logs[:n]
	}
	return logs
}
