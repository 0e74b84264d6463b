package constants

// HTTP constants
const (
	// UserIDHeader carries the caller's user UUID
	UserIDHeader = "user-id"
	// UserIDContextKey is where the auth middleware stores the parsed UUID
	UserIDContextKey = "user_id"
)

// Redis key prefixes
const (
	// UserLockPrefix guards one user's read-reconcile-commit section: kg:lock:user:{user_id}
	UserLockPrefix = "kg:lock:user:"
	// RunKeyPrefix holds one build attempt: kg:run:{run_id}
	RunKeyPrefix = "kg:run:"
	// UserRunsPrefix lists a user's run ids, newest first: kg:user:{user_id}:runs
	UserRunsPrefix = "kg:user:"
)

// Conversation constants
const (
	// FinalMessageOpen and FinalMessageClose wrap the assistant's closing message
	FinalMessageOpen  = "<final_message>"
	FinalMessageClose = "</final_message>"
)

// Knowledge build constants
const (
	// DateFormat renders {date} in prompts
	DateFormat = "January 02, 2006"
	// DispatcherQueueSize is the per-user backlog of pending builds
	DispatcherQueueSize = 16
)
