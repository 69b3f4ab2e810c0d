package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

// Shared store backends
const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
	StoreMySQL  = "mysql"
)

// Export sinks
const (
	ExportLocal = "local"
	ExportMinio = "minio"
)

// Logical keys in the shared store
const (
	KeyTests       = "tests"
	KeySubmissions = "submissions"
)

const (
	DeletedTestTitle  = "Deleted test"
	ExportMissingTest = "N/A"
)

const MimeCSV = "text/csv; charset=utf-8"
