package records

// Bucket keys. These names are a wire contract shared with exports and older
// installations; never rename them.
const (
	KeySchoolInfo      = "school_info"
	KeyUsers           = "users"
	KeyStudents        = "students"
	KeyTeachers        = "teachers"
	KeyFeeRecords      = "fee_records"
	KeySalaryPayments  = "salary_payments"
	KeyClasses         = "classes"
	KeyFeeHeads        = "fee_heads"
	KeyAcademicYears   = "academic_years"
	KeyGoogleAPIConfig = "google_api_config"
	KeyAuditLogs       = "audit_logs"
	KeyBackupFiles     = "backup_files"
	KeySetupComplete   = "setup_complete"
	KeyCurrentUser     = "current_user"
	KeyTheme           = "theme"
)

// Counter names passed to NextID. Each is persisted as CounterKey(name).
const (
	CounterStudent      = "student"
	CounterTeacher      = "teacher"
	CounterReceipt      = "receipt"
	CounterPayment      = "payment"
	CounterUser         = "user"
	CounterClass        = "class"
	CounterFeeHead      = "fee_head"
	CounterAcademicYear = "academic_year"
)

// MaxAuditEntries caps the audit feed; older entries are dropped.
const MaxAuditEntries = 1000

// CounterKey returns the bucket key holding a counter.
func CounterKey(name string) string {
	return "last_" + name + "_id"
}

// BucketKeys lists every non-counter key the store uses.
func BucketKeys() []string {
	return []string{
		KeySchoolInfo,
		KeyUsers,
		KeyStudents,
		KeyTeachers,
		KeyFeeRecords,
		KeySalaryPayments,
		KeyClasses,
		KeyFeeHeads,
		KeyAcademicYears,
		KeyGoogleAPIConfig,
		KeyAuditLogs,
		KeyBackupFiles,
		KeySetupComplete,
		KeyCurrentUser,
		KeyTheme,
	}
}

// Counters lists every counter name.
func Counters() []string {
	return []string{
		CounterStudent,
		CounterTeacher,
		CounterReceipt,
		CounterPayment,
		CounterUser,
		CounterClass,
		CounterFeeHead,
		CounterAcademicYear,
	}
}

// CollectionCounters maps each id-bearing collection to the counter that
// issues its ids.
func CollectionCounters() map[string]string {
	return map[string]string{
		KeyStudents:       CounterStudent,
		KeyTeachers:       CounterTeacher,
		KeyFeeRecords:     CounterReceipt,
		KeySalaryPayments: CounterPayment,
		KeyUsers:          CounterUser,
		KeyClasses:        CounterClass,
		KeyFeeHeads:       CounterFeeHead,
		KeyAcademicYears:  CounterAcademicYear,
	}
}
