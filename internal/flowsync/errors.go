package flowsync

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/smithy-go"
)

// Error category constants classify deployment failures for diagnostics.
const (
	ErrCategoryPermission    = "permission"
	ErrCategoryConfiguration = "configuration"
	ErrCategoryResource      = "resource"
	ErrCategoryTimeout       = "timeout"
	ErrCategoryNetwork       = "network"
	ErrCategoryThrottling    = "throttling"
)

// ResolutionError reports a symbolic token that could not be resolved
// against the inventory.
type ResolutionError struct {
	// Kind is the token kind (e.g. "queue", "flow-attribute").
	Kind string
	// Name is the unresolved resource name.
	Name string
	// Document is the name of the document being resolved, if known.
	Document string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("unresolved %s reference %q", e.Kind, e.Name)
	if e.Document != "" {
		msg = e.Document + ": " + msg
	}
	return msg + " (check the resource exists on the instance)"
}

// CollisionError reports two owners claiming the same symbolic name. It is
// raised by the collector when two resource kinds share a name and by the
// object-map stage when an injected key shadows a document variable.
type CollisionError struct {
	Name     string
	Kinds    []string
	Document string
	// Variables lists document-declared variables that overlap injected keys.
	Variables []string
	// Values holds the conflicting identifiers when one kind claims the
	// name twice.
	Values []string
}

func (e *CollisionError) Error() string {
	if len(e.Variables) > 0 {
		return fmt.Sprintf("%s: flow variables %s shadow object map entries; rename them",
			e.Document, strings.Join(e.Variables, ", "))
	}
	msg := fmt.Sprintf("name %q is claimed by %s", e.Name, strings.Join(e.Kinds, " and "))
	if len(e.Values) > 0 {
		msg = fmt.Sprintf("name %q is claimed by more than one %s (%s)",
			e.Name, strings.Join(e.Kinds, "/"), strings.Join(e.Values, ", "))
	}
	if e.Document != "" {
		msg = e.Document + ": " + msg
	}
	return msg
}

// FormatError reports document content that could not be parsed.
type FormatError struct {
	Document string
	Cause    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: content is not valid flow JSON: %v", e.Document, e.Cause)
}

func (e *FormatError) Unwrap() error {
	return e.Cause
}

// NotFoundError reports expected documents or resources that are absent.
type NotFoundError struct {
	What  string
	Where string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found in %s", e.What, e.Where)
}

// LimitError reports an injected object map that exceeds the size Connect
// accepts for a single flow attribute block.
type LimitError struct {
	Document string
	Size     int
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: object map payload is %d bytes, limit is %d", e.Document, e.Size, e.Limit)
}

// TypeMismatchError reports a desired and an actual resource that share a
// name but disagree on flow type (or on being a flow at all).
type TypeMismatchError struct {
	Name        string
	DesiredType string
	ActualType  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("resource %q: desired type %s does not match live type %s",
		e.Name, typeLabel(e.DesiredType), typeLabel(e.ActualType))
}

func typeLabel(t string) string {
	if t == "" {
		return "MODULE"
	}
	return t
}

// DeployError is a structured error type that provides actionable diagnostics
// for failures talking to the directory service. It includes the failed
// resource, error category, and a human-readable remediation hint.
type DeployError struct {
	// Category classifies the failure (e.g. "permission", "configuration").
	Category string
	// ResourceType is the type of resource that failed (e.g. "contact_flow").
	ResourceType string
	// ResourceName is the name of the resource that failed.
	ResourceName string
	// Operation is the action that failed (e.g. "create", "update", "archive").
	Operation string
	// Message is the primary error description.
	Message string
	// Remediation is a human-readable hint on how to fix the issue.
	Remediation string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface with a diagnostic-rich message.
func (e *DeployError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %q failed", e.Operation, e.ResourceType, e.ResourceName)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Remediation != "" {
		fmt.Fprintf(&b, " [hint: %s]", e.Remediation)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *DeployError) Unwrap() error {
	return e.Cause
}

// classifyAWSError inspects an AWS error and returns a category and
// remediation hint. Smithy API error codes are checked first, then the
// message text.
func classifyAWSError(err error) (category, remediation string) {
	if err == nil {
		return ErrCategoryResource, ""
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "AccessDeniedException", "UnauthorizedException":
			return ErrCategoryPermission, hintCheckIAM
		case "ThrottlingException", "TooManyRequestsException", "LimitExceededException":
			return ErrCategoryThrottling, hintThrottled
		case "InvalidContactFlowException", "InvalidContactFlowModuleException",
			"InvalidParameterException", "InvalidRequestException":
			return ErrCategoryConfiguration, hintCheckContent
		case "DuplicateResourceException":
			return ErrCategoryResource, hintDuplicate
		}
	}
	return classifyErrorMessage(err.Error())
}

// classifyErrorMessage determines category and remediation from an error string.
func classifyErrorMessage(msg string) (category, remediation string) {
	lower := strings.ToLower(msg)

	if containsAny(lower, permissionKeywords) {
		return ErrCategoryPermission, hintCheckIAM
	}
	if containsAny(lower, networkKeywords) {
		return ErrCategoryNetwork, hintCheckNetwork
	}
	if containsAny(lower, timeoutKeywords) {
		return ErrCategoryTimeout, hintRetryOrTimeout
	}
	if containsAny(lower, configKeywords) {
		return ErrCategoryConfiguration, hintCheckConfig
	}
	return ErrCategoryResource, ""
}

// Keyword groups for error classification.
var (
	permissionKeywords = []string{
		"accessdenied", "access denied", "unauthorized",
		"not authorized", "forbidden",
	}
	networkKeywords = []string{
		"connection refused", "no such host", "dial tcp",
		"tls handshake", "endpoint",
	}
	timeoutKeywords = []string{
		"deadline exceeded", "context canceled", "timeout",
	}
	configKeywords = []string{
		"validation", "invalid", "malformed", "does not match",
	}
)

// Remediation hint constants.
const (
	hintCheckIAM       = "verify the caller has connect, lambda, lex and wisdom list permissions"
	hintCheckNetwork   = "verify the AWS region is correct and network connectivity is available"
	hintRetryOrTimeout = "the request did not complete in time; retry the run"
	hintCheckConfig    = "check the instance id and capability settings"
	hintCheckContent   = "the flow content was rejected; render it locally and inspect the referenced ARNs"
	hintThrottled      = "Connect API rate limit reached; rerun or lower concurrency of other pipelines"
	hintDuplicate      = "a resource with this name already exists; check for an archived z_ copy"
)

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// newDeployError creates a DeployError with automatic AWS error classification.
func newDeployError(operation, resType, resName string, cause error) *DeployError {
	category, remediation := classifyAWSError(cause)
	return &DeployError{
		Category:     category,
		ResourceType: resType,
		ResourceName: resName,
		Operation:    operation,
		Message:      cause.Error(),
		Remediation:  remediation,
		Cause:        cause,
	}
}

// IsDeployError returns the DeployError if err is (or wraps) one.
func IsDeployError(err error) *DeployError {
	var de *DeployError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// isNotFound returns true if the error is an AWS ResourceNotFoundException.
func isNotFound(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ResourceNotFoundException"
}

// combineErrors joins two errors, dropping nils.
func combineErrors(existing, additional error) error {
	if existing == nil {
		return additional
	}
	if additional == nil {
		return existing
	}
	return errors.Join(existing, additional)
}

// DiagnosticSummary returns a multi-line diagnostic string for a slice of
// errors, suitable for display to the user after a failed run.
func DiagnosticSummary(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run completed with %d error(s):\n", len(errs))
	for i, err := range errs {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
