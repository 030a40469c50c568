package datastore

import (
	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/rsamf/mink/internal/errors"
	"gorm.io/gorm"
)

// Sentinel errors for repository operations.
var (
	// ErrJobNotFound indicates the requested job does not exist.
	ErrJobNotFound = errors.NewStd("job not found")

	// ErrMeetingNotFound indicates the requested meeting does not exist.
	ErrMeetingNotFound = errors.NewStd("meeting not found")

	// ErrInvalidTransition indicates the job is not in a state that allows
	// the requested change, typically because it is already terminal.
	ErrInvalidTransition = errors.NewStd("invalid job status transition")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")
)

const mysqlDuplicateEntry = 1062

// isDuplicateKey recognizes unique violations from every supported driver.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// dbError wraps a driver error with datastore context.
func dbError(err error, operation, jobID string) error {
	b := errors.New(err).
		Category(errors.CategoryDatabase).
		Context("operation", operation)
	if jobID != "" {
		b = b.JobContext(jobID)
	}
	return b.Build()
}
