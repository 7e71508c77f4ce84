package core

// error_messages.go maps technical import failures to short operator-facing
// messages with a code for support reference.
//
// # Error Codes Reference
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Unsupported source: File type cannot be imported
//	         Patterns: "unsupported source"
//	SRC002 - Sheet not found: The workbook has no sheet with that name
//	         Patterns: "sheet not found"
//	SRC003 - Empty sheet: The sheet has no header row
//	         Patterns: "empty sheet", "no header row"
//	SRC004 - Unreadable file: Workbook or CSV could not be parsed
//	         Patterns: "zip: not a valid zip file", "open workbook", "invalid csv", "parse error on line"
//	SRC005 - File too large: Upload exceeds the configured limit
//	         Patterns: "file too large", "request body too large"
//
// # Sink Errors (SNK001-SNK099)
//
//	SNK001 - Connection refused: Unable to connect to the database
//	SNK002 - Connection reset: Database connection was interrupted
//	SNK003 - Timeout: Write timed out
//	SNK004 - Locked: Database was busy with conflicting writers
//	SNK005 - Permission denied: Database user lacks privileges
//	SNK006 - Disk full: Database storage is exhausted
//	SNK007 - Write failed: Batch could not be written
//
// # Index Errors (IDX001-IDX099)
//
//	IDX001 - Index failed: An index could not be created (data is still loaded)
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: Another import is in progress
//	RUN002 - Cancelled: The import was cancelled
//	RUN003 - Internal error: A stage panicked while processing a sheet
//	RUN004 - Registry invalid: The table registry file has errors
//	RUN005 - Duplicate: The same file is already being imported
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the logs for the technical error.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides operator-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgUnreadable = UserMessage{
		Message: "The file could not be read",
		Action:  "Re-export the workbook as .xlsx or the sheet as UTF-8 CSV",
		Code:    "SRC004",
	}
	msgEmptySheet = UserMessage{
		Message: "The sheet has no header row",
		Action:  "Check that the sheet is not blank and that headers are in the first rows",
		Code:    "SRC003",
	}
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the workbook or raise UPLOAD_MAX_FILE_SIZE",
		Code:    "SRC005",
	}
	msgTimeout = UserMessage{
		Message: "Operation timed out",
		Action:  "Try a smaller batch size or raise IMPORT_SHEET_TIMEOUT",
		Code:    "SNK003",
	}
	msgLocked = UserMessage{
		Message: "The database was busy with conflicting writers",
		Action:  "Retry the import once other writers finish",
		Code:    "SNK004",
	}
)

// errorPatterns maps technical error text (lowercase) to messages. Order matters.
var errorPatterns = []errorPattern{
	// Run
	{pattern: "too many concurrent imports", msg: UserMessage{
		Message: "Another import is in progress",
		Action:  "Wait for it to finish and try again",
		Code:    "RUN001",
	}},
	{pattern: "already being imported", msg: UserMessage{
		Message: "This file is already being imported",
		Action:  "Wait for the running import of this file to finish",
		Code:    "RUN005",
	}},
	{pattern: "context canceled", msg: UserMessage{
		Message: "The import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "RUN002",
	}},
	{pattern: "panic", msg: UserMessage{
		Message: "An internal error occurred while processing the sheet",
		Action:  "Report the sheet name and run id to support",
		Code:    "RUN003",
	}},
	{pattern: "registry", msg: UserMessage{
		Message: "The table registry has errors",
		Action:  "Fix the file named by REGISTRY_PATH",
		Code:    "RUN004",
	}},

	// Source
	{pattern: "unsupported source", msg: UserMessage{
		Message: "This file type cannot be imported",
		Action:  "Use .xlsx, .xlsm, .csv or a directory of CSV files",
		Code:    "SRC001",
	}},
	{pattern: "sheet not found", msg: UserMessage{
		Message: "The workbook has no sheet with that name",
		Action:  "Check SOURCE_SHEETS against the workbook's sheet names",
		Code:    "SRC002",
	}},
	{pattern: "empty sheet", msg: msgEmptySheet},
	{pattern: "no header row", msg: msgEmptySheet},
	{pattern: "not a valid zip file", msg: msgUnreadable},
	{pattern: "open workbook", msg: msgUnreadable},
	{pattern: "invalid csv", msg: msgUnreadable},
	{pattern: "parse error on line", msg: msgUnreadable},
	{pattern: "file too large", msg: msgTooLarge},
	{pattern: "request body too large", msg: msgTooLarge},

	// Index
	{pattern: "create index", msg: UserMessage{
		Message: "An index could not be created",
		Action:  "Data was loaded; queries may be slower until the index exists",
		Code:    "IDX001",
	}},

	// Sink
	{pattern: "connection refused", msg: UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Check DATABASE_URL and that the server is running",
		Code:    "SNK001",
	}},
	{pattern: "connection reset", msg: UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Re-run the import",
		Code:    "SNK002",
	}},
	{pattern: "deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{pattern: "deadlock", msg: msgLocked},
	{pattern: "database is locked", msg: msgLocked},
	{pattern: "permission denied", msg: UserMessage{
		Message: "The database user lacks the required privileges",
		Action:  "Grant CREATE and INSERT on the target schema",
		Code:    "SNK005",
	}},
	{pattern: "no space left", msg: UserMessage{
		Message: "Database storage is full",
		Action:  "Free disk space on the database host",
		Code:    "SNK006",
	}},
	{pattern: "append ", msg: UserMessage{
		Message: "A batch could not be written",
		Action:  "Check the logs for the failing rows and re-run the import",
		Code:    "SNK007",
	}},
	{pattern: "replace ", msg: UserMessage{
		Message: "The table could not be refreshed",
		Action:  "Check the logs and re-run the import",
		Code:    "SNK007",
	}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
