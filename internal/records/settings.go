package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// DefaultTheme is returned when no theme was chosen.
const DefaultTheme = "light"

// SchoolInfo returns the school's letterhead details.
func (s *Store) SchoolInfo(ctx context.Context) SchoolInfo {
	return storage.GetOr(ctx, s.kv, KeySchoolInfo, SchoolInfo{})
}

// SaveSchoolInfo replaces the school's letterhead details.
func (s *Store) SaveSchoolInfo(ctx context.Context, info SchoolInfo) error {
	info.Name = strings.TrimSpace(info.Name)
	if info.Name == "" {
		return invalidf("school name is required")
	}
	return s.update(ctx, func(t *txn) error {
		if err := t.put(KeySchoolInfo, info); err != nil {
			return err
		}
		return t.record(ActionUpdate, "school_info", "", fmt.Sprintf("Updated school info for %s", info.Name))
	})
}

// Theme returns the UI theme preference.
func (s *Store) Theme(ctx context.Context) string {
	return storage.GetOr(ctx, s.kv, KeyTheme, DefaultTheme)
}

// SetTheme stores the UI theme preference. Preferences are not audited.
func (s *Store) SetTheme(ctx context.Context, theme string) error {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return invalidf("theme is required")
	}
	return s.update(ctx, func(t *txn) error {
		return t.put(KeyTheme, theme)
	})
}

// SetupComplete reports whether first-run setup finished.
func (s *Store) SetupComplete(ctx context.Context) bool {
	return storage.GetOr(ctx, s.kv, KeySetupComplete, false)
}

// MarkSetupComplete records that first-run setup finished.
func (s *Store) MarkSetupComplete(ctx context.Context) error {
	return s.update(ctx, func(t *txn) error {
		return t.put(KeySetupComplete, true)
	})
}

// GoogleAPIConfig returns the spreadsheet-sync settings.
func (s *Store) GoogleAPIConfig(ctx context.Context) GoogleAPIConfig {
	return storage.GetOr(ctx, s.kv, KeyGoogleAPIConfig, GoogleAPIConfig{})
}

// SaveGoogleAPIConfig replaces the spreadsheet-sync settings.
func (s *Store) SaveGoogleAPIConfig(ctx context.Context, cfg GoogleAPIConfig) error {
	if cfg.Enabled && cfg.SpreadsheetID == "" {
		return invalidf("spreadsheet id is required when sync is enabled")
	}
	return s.update(ctx, func(t *txn) error {
		if err := t.put(KeyGoogleAPIConfig, cfg); err != nil {
			return err
		}
		state := "disabled"
		if cfg.Enabled {
			state = "enabled"
		}
		return t.record(ActionUpdate, "google_api_config", "", "Updated spreadsheet sync settings ("+state+")")
	})
}

// BackupFiles returns the backups recorded so far, newest last.
func (s *Store) BackupFiles(ctx context.Context) []BackupFile {
	return list[BackupFile](ctx, s, KeyBackupFiles)
}

// RecordBackup appends a backup file entry and audits it.
func (s *Store) RecordBackup(ctx context.Context, f BackupFile) error {
	if f.Path == "" {
		return invalidf("backup path is required")
	}
	return s.update(ctx, func(t *txn) error {
		var files []BackupFile
		if err := t.load(KeyBackupFiles, &files); err != nil {
			return err
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = s.timestamp()
		}
		files = append(files, f)
		if err := t.put(KeyBackupFiles, files); err != nil {
			return err
		}
		return t.record(ActionBackup, "backup", f.Path,
			fmt.Sprintf("Backup written to %s (%d bytes)", f.Path, f.SizeBytes))
	})
}
