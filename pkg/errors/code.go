package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 20000-20999: Dispatch & worker pool errors
// 21000-21999: Judge pipeline errors
// 22000-22999: Remote judge errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10004
	Timeout             ErrorCode = 10005

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Storage errors (10300-10399)
	StorageError    ErrorCode = 10300
	ObjectNotFound  ErrorCode = 10301
	PackCorrupted   ErrorCode = 10302
	PackExtractFail ErrorCode = 10303

	// Validation errors (10400-10499)
	ValidationFailed ErrorCode = 10400

	// ========== Dispatch & Worker Pool Errors (20000-20999) ==========

	DispatchError      ErrorCode = 20000
	NoServerAvailable  ErrorCode = 20001
	NoAccountAvailable ErrorCode = 20002
	HealthSourceError  ErrorCode = 20003
	ReleaseFailed      ErrorCode = 20004

	// ========== Judge Pipeline Errors (21000-21999) ==========

	JudgeSystemError     ErrorCode = 21000
	CompileFailed        ErrorCode = 21001
	SubmitFailed         ErrorCode = 21002
	SandboxError         ErrorCode = 21003
	LanguageNotSupported ErrorCode = 21004
	JudgeModeUnknown     ErrorCode = 21005
	AuxProgramMissing    ErrorCode = 21006
	TestDataMissing      ErrorCode = 21007
	SubmissionNotFound   ErrorCode = 21008
	ProblemNotFound      ErrorCode = 21009

	// ========== Remote Judge Errors (22000-22999) ==========

	RemoteJudgeError   ErrorCode = 22000
	RemoteOjUnknown    ErrorCode = 22001
	RemoteSubmitFailed ErrorCode = 22002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	StorageError:    "Object storage operation failed",
	ObjectNotFound:  "Object not found in storage",
	PackCorrupted:   "Test data pack is corrupted",
	PackExtractFail: "Failed to extract test data pack",

	ValidationFailed: "Validation failed",

	DispatchError:      "Dispatch failed",
	NoServerAvailable:  "No judge server available",
	NoAccountAvailable: "No remote judge account available",
	HealthSourceError:  "Health source query failed",
	ReleaseFailed:      "Failed to release worker capacity",

	JudgeSystemError:     "Judge system error",
	CompileFailed:        "Compilation failed",
	SubmitFailed:         "Submission execution failed",
	SandboxError:         "Sandbox execution failed",
	LanguageNotSupported: "Programming language not supported",
	JudgeModeUnknown:     "Unknown judge mode",
	AuxProgramMissing:    "Special judge or interactive program is missing",
	TestDataMissing:      "Problem test data is missing",
	SubmissionNotFound:   "Submission not found",
	ProblemNotFound:      "Problem not found",

	RemoteJudgeError:   "Remote judge operation failed",
	RemoteOjUnknown:    "Unknown remote OJ",
	RemoteSubmitFailed: "Remote submission failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound, c == ProblemNotFound:
		return 404
	case c == InvalidParams, c == ValidationFailed:
		return 400
	case c == ServiceUnavailable, c == NoServerAvailable, c == NoAccountAvailable:
		return 503
	default:
		return 500
	}
}
