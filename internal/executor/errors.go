package executor

// Terminal failure classification surfaced on a [Result].
//
// There is no automatic retry inside the pipeline; any retry policy
// belongs to a calling layer, because retrying a non-deterministic
// external build command without operator visibility risks masking real
// failures.
type Code string

const (
	CodeUnsupportedEnvironment  Code = "UnsupportedEnvironment"
	CodeAnalyzeFailed           Code = "AnalyzeFailed"
	CodeIsolationFailed         Code = "IsolationFailed"
	CodeBuildTimeout            Code = "BuildTimeout"
	CodeBackendFailed           Code = "BackendFailed"
	CodeUnsafePath              Code = "UnsafePath"
	CodeUnsafeArchive           Code = "UnsafeArchive"
	CodeMissingRequiredMetadata Code = "MissingRequiredMetadata"
	CodeValidationFailed        Code = "ValidationFailed"
	CodePublishFailed           Code = "PublishFailed"
)
