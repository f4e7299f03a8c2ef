package core

// error_messages.go maps technical errors to user-facing messages with codes
// for support reference. Users can quote the code; support staff look it up
// here.
//
// # Content Store Errors (DB001-DB099)
//
//	DB001 - Slug already exists in the target collection
//	DB002 - Unique constraint violated
//	DB003 - Content store temporarily disabled after repeated failures
//	DB004 - Content store unavailable
//	DB005 - Connection refused
//	DB006 - Operation timed out
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Required field is empty
//	VAL002 - Duplicate slug within the file
//	VAL003 - Malformed slug
//	VAL004 - Value not in the allowed list
//	VAL005 - Invalid URL
//	VAL006 - Value does not match the expected pattern
//	VAL007 - Unparseable JSON cell (warning only)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Invalid CSV header
//	FILE003 - Empty file
//	FILE004 - No file provided
//	FILE005 - Malformed line
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Job not found
//	JOB002 - Action not allowed in the job's current status
//	JOB003 - Too many jobs running
//	JOB004 - More rows than the job was created for
//	JOB005 - Import cancelled
//
// # Template Errors (TPL001-TPL099)
//
//	TPL001 - Template not found
//	TPL002 - Template inactive
//	TPL003 - Template definition invalid
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Too many requests
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones. ERR000 is the
// fallback; check the logs for the technical error.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// Content store
	{
		pattern: "slug already exists",
		msg: UserMessage{
			Message: "A page with this slug already exists",
			Action:  "Change the slug or title in your file and import the row again",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "circuit open",
		msg: UserMessage{
			Message: "The content store is temporarily disabled after repeated failures",
			Action:  "Wait a minute, then resume the job",
			Code:    "DB003",
		},
	},
	{
		pattern: "content store unavailable",
		msg: UserMessage{
			Message: "The content store could not be reached",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the database",
			Action:  "Please try again in a few moments",
			Code:    "DB005",
		},
	},

	// Job lifecycle. Cancellation and deadlines come before the generic
	// timeout pattern.
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The import was cancelled",
			Action:  "Resume the job or start a new import",
			Code:    "JOB005",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or resume the job later",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or resume the job later",
			Code:    "DB006",
		},
	},
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "Import job not found",
			Action:  "The job may have expired. Check the job ID or start a new import",
			Code:    "JOB001",
		},
	},
	{
		pattern: "invalid job status transition",
		msg: UserMessage{
			Message: "That action is not allowed in the job's current status",
			Action:  "Refresh the job to see its current status",
			Code:    "JOB002",
		},
	},
	{
		pattern: "too many concurrent import jobs",
		msg: UserMessage{
			Message: "Too many imports are running",
			Action:  "Please wait a moment and try again",
			Code:    "JOB003",
		},
	},
	{
		pattern: "stored rows exceed job total",
		msg: UserMessage{
			Message: "The file has more rows than the job was created for",
			Action:  "Create a new job for this file",
			Code:    "JOB004",
		},
	},

	// Templates
	{
		pattern: "template not found",
		msg: UserMessage{
			Message: "Import template not found",
			Action:  "Pick a template from the template list",
			Code:    "TPL001",
		},
	},
	{
		pattern: "template is inactive",
		msg: UserMessage{
			Message: "This import template is no longer active",
			Action:  "Use the current version of the template",
			Code:    "TPL002",
		},
	},
	{
		pattern: "invalid template",
		msg: UserMessage{
			Message: "The template definition is invalid",
			Action:  "Contact an administrator to fix the template",
			Code:    "TPL003",
		},
	},

	// Row validation
	{
		pattern: "required field is empty",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Fill in every required column; download the template to see which ones",
			Code:    "VAL001",
		},
	},
	{
		pattern: "duplicate slug",
		msg: UserMessage{
			Message: "Two rows in the file would get the same slug",
			Action:  "Give one of the rows a different title or an explicit slug",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid slug format",
		msg: UserMessage{
			Message: "Slug is not valid",
			Action:  "Use lower-case letters, digits and hyphens only",
			Code:    "VAL003",
		},
	},
	{
		pattern: "value must be one of",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL004",
		},
	},
	{
		pattern: "invalid url",
		msg: UserMessage{
			Message: "URL is not valid",
			Action:  "Use a full http:// or https:// address",
			Code:    "VAL005",
		},
	},
	{
		pattern: "does not match pattern",
		msg: UserMessage{
			Message: "Value has the wrong format",
			Action:  "Check the expected format for this field",
			Code:    "VAL006",
		},
	},
	{
		pattern: "invalid json",
		msg: UserMessage{
			Message: "A JSON column could not be read and was left empty",
			Action:  "Fix the JSON in that cell if the field matters",
			Code:    "VAL007",
		},
	},

	// Files
	{
		pattern: "file exceeds maximum upload size",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header row and data rows",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "malformed line",
		msg: UserMessage{
			Message: "A line in the file could not be read",
			Action:  "Check quoting on the reported line",
			Code:    "FILE005",
		},
	},

	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no specific pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. If no
// pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	return MapMessage(err.Error())
}

// MapMessage is MapError for messages already rendered as strings, such as
// job error lists.
func MapMessage(msg string) UserMessage {
	lower := strings.ToLower(msg)
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message. Error()
// shows the user message; Unwrap exposes the original for logging and errors.Is.
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

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
