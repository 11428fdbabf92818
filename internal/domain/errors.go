package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrorCode is the machine-readable code returned to callers (K-codes and 577)
type ErrorCode string

const (
	// Ownership & lookup
	ErrorCodeMerchantMismatch    ErrorCode = "K004"
	ErrorCodeTransactionNotFound ErrorCode = "K041"

	// Card & token validation
	ErrorCodeBinDenied          ErrorCode = "K007"
	ErrorCodeCVVOmissionDenied  ErrorCode = "K015"
	ErrorCodeInvalidCard        ErrorCode = "K025"
	ErrorCodeTokenExpired       ErrorCode = "577"
	ErrorCodeTokenAlreadyUsed   ErrorCode = "577"
	ErrorCodeInvalidRequestBody ErrorCode = "K001"

	// Amounts & currency
	ErrorCodeCaptureOverLimit   ErrorCode = "K012"
	ErrorCodeVoidOverPending    ErrorCode = "K023"
	ErrorCodeVoidAmountNotValid ErrorCode = "K039"
	ErrorCodeCurrencyMismatch   ErrorCode = "K042"
	ErrorCodeFraudThreshold     ErrorCode = "K220"

	// Deferred payments
	ErrorCodeDeferredInvalid       ErrorCode = "K013"
	ErrorCodeDeferredNotConfigured ErrorCode = "K028"

	// Business rule declines
	ErrorCodeAntifraudDeclined  ErrorCode = "K021"
	ErrorCodeThreeDSDeclined    ErrorCode = "K055"
	ErrorCodeDeclinedByRule     ErrorCode = "K322"
	ErrorCodeReceivableRejected ErrorCode = "K150"

	// Lifecycle violations
	ErrorCodeInvalidState     ErrorCode = "K020"
	ErrorCodeDuplicateCapture ErrorCode = "K051"
	ErrorCodeVoidTimeLimit    ErrorCode = "K052"

	// Processor & collaborator failures
	ErrorCodeProcessorDeclined    ErrorCode = "K006"
	ErrorCodeProcessorUnreachable ErrorCode = "K036"
	ErrorCodeExternalTimeout      ErrorCode = "K027"
	ErrorCodeInternal             ErrorCode = "K500"
)

// ErrorKind classifies an error for propagation and retry decisions
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindBusinessRuleDecline ErrorKind = "business_rule_decline"
	KindProcessorDeclined   ErrorKind = "processor_declined"
	KindReachability        ErrorKind = "reachability"
	KindIdempotencyConflict ErrorKind = "idempotency_conflict"
	KindExternalTimeout     ErrorKind = "external_timeout"
	KindIntegrityViolation  ErrorKind = "integrity_violation"
	KindNotFound            ErrorKind = "not_found"
	KindInfrastructure      ErrorKind = "infrastructure"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, kind ErrorKind, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, kind ErrorKind, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Kind:    kind,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// GetErrorKind extracts the error kind, defaulting to infrastructure for foreign errors
func GetErrorKind(err error) ErrorKind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	var procErr *ProcessorError
	if errors.As(err, &procErr) {
		return KindProcessorDeclined
	}
	var reachErr *ReachabilityError
	if errors.As(err, &reachErr) {
		return KindReachability
	}
	return KindInfrastructure
}

// IsRetryableKind reports whether the failover protocol may act on this kind of error.
// Only reachability failures qualify; ambiguous timeouts never do.
func IsRetryableKind(kind ErrorKind) bool {
	return kind == KindReachability
}

// IsAlertable reports whether an error must also go to the operational-alerting channel
func IsAlertable(err error) bool {
	return GetErrorKind(err) == KindIntegrityViolation
}

// ProcessorError is a structured rejection returned by a processor adapter.
// It carries enough card/processor metadata to persist a declined transaction.
type ProcessorError struct {
	ProcessorName     string
	ProcessorCode     string
	ProcessorMessage  string
	TicketNumber      string
	TransactionRef    string
	ApprovalCode      string
	ResponseCode      string
	ResponseText      string
	AcquirerBank      string
	CardType          string
	IssuingBank       string
	ProcessorMetadata map[string]string
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor %s declined: %s (%s)", e.ProcessorName, e.ProcessorMessage, e.ProcessorCode)
}

// ReachabilityError signals the processor could not be reached before any authorization happened
type ReachabilityError struct {
	ProcessorName string
	Err           error
}

func (e *ReachabilityError) Error() string {
	return fmt.Sprintf("processor %s unreachable: %v", e.ProcessorName, e.Err)
}

// Unwrap returns the transport error
func (e *ReachabilityError) Unwrap() error {
	return e.Err
}

// RuleDeclineContext keeps what a declined-by-rule transaction needs to be persisted
type RuleDeclineContext struct {
	RequestAmount decimal.Decimal
	Code          string
	Message       string
	ApprovalCode  string
	ProcessorName string
	MaskedCard    string
	Currency      string
}

// DeclinedByRuleError is returned by the rule engine when a risk rule rejects the request
type DeclinedByRuleError struct {
	Context RuleDeclineContext
}

func (e *DeclinedByRuleError) Error() string {
	return fmt.Sprintf("declined by rule %s: %s", e.Context.Code, e.Context.Message)
}

// Structured error constructors

func ErrTransactionNotFound(ticket string) *DomainError {
	return NewDomainError(ErrorCodeTransactionNotFound, KindNotFound, "transaction not found").
		WithDetail("ticketNumber", ticket)
}

func ErrMerchantMismatch() *DomainError {
	return NewDomainError(ErrorCodeMerchantMismatch, KindValidation, "transaction does not belong to merchant")
}

func ErrMerchantNotFound(merchantID string) *DomainError {
	return NewDomainError(ErrorCodeMerchantMismatch, KindNotFound, "merchant not found").
		WithDetail("merchantId", merchantID)
}

func ErrNotVoidable(reason string) *DomainError {
	return NewDomainError(ErrorCodeInvalidState, KindValidation, "transaction cannot be voided").
		WithDetail("reason", reason)
}

func ErrNotCapturable(reason string) *DomainError {
	return NewDomainError(ErrorCodeInvalidState, KindValidation, "transaction cannot be captured").
		WithDetail("reason", reason)
}

func ErrCurrencyMismatch(expected, got string) *DomainError {
	return NewDomainError(ErrorCodeCurrencyMismatch, KindValidation, "currency does not match original transaction").
		WithDetail("expected", expected).
		WithDetail("received", got)
}

func ErrTokenAlreadyUsed(tokenID string) *DomainError {
	return NewDomainError(ErrorCodeTokenAlreadyUsed, KindIdempotencyConflict, "token already used").
		WithDetail("token", tokenID)
}

func ErrTokenExpired(tokenID string) *DomainError {
	return NewDomainError(ErrorCodeTokenExpired, KindValidation, "token expired").
		WithDetail("token", tokenID)
}

func ErrExternalTimeout(collaborator string, err error) *DomainError {
	return WrapError(ErrorCodeExternalTimeout, KindExternalTimeout, "external call timed out", err).
		WithDetail("collaborator", collaborator)
}

func ErrInvalidRequest(field, message string) *DomainError {
	return NewDomainError(ErrorCodeInvalidRequestBody, KindValidation, message).
		WithDetail("field", field)
}

func ErrVoidAmountNotPositive() *DomainError {
	return NewDomainError(ErrorCodeVoidAmountNotValid, KindValidation, "void amount must be greater than zero")
}

func ErrVoidOverPending(requested, pending decimal.Decimal) *DomainError {
	return NewDomainError(ErrorCodeVoidOverPending, KindIntegrityViolation, "void amount exceeds pending amount").
		WithDetail("requested", requested.String()).
		WithDetail("pending", pending.String())
}

func ErrVoidTimeLimit(age, limit time.Duration) *DomainError {
	return NewDomainError(ErrorCodeVoidTimeLimit, KindIntegrityViolation, "void time limit exceeded").
		WithDetail("ageDays", int(age.Hours()/24)).
		WithDetail("limitDays", int(limit.Hours()/24))
}

func ErrDuplicateCapture(ticket string) *DomainError {
	return NewDomainError(ErrorCodeDuplicateCapture, KindIntegrityViolation, "transaction already captured").
		WithDetail("ticketNumber", ticket)
}

func ErrCaptureOverLimit(requested, limit decimal.Decimal) *DomainError {
	return NewDomainError(ErrorCodeCaptureOverLimit, KindValidation, "capture amount exceeds authorized amount").
		WithDetail("requested", requested.String()).
		WithDetail("limit", limit.String())
}

func ErrFraudThreshold(amount, threshold decimal.Decimal) *DomainError {
	return NewDomainError(ErrorCodeFraudThreshold, KindValidation, "amount exceeds merchant fraud threshold").
		WithDetail("amount", amount.String()).
		WithDetail("threshold", threshold.String())
}

func ErrDeferredInvalid(reason string) *DomainError {
	return NewDomainError(ErrorCodeDeferredInvalid, KindValidation, "invalid deferred parameters").
		WithDetail("reason", reason)
}

func ErrDeferredNotConfigured() *DomainError {
	return NewDomainError(ErrorCodeDeferredNotConfigured, KindValidation, "deferred option not configured for merchant")
}

func ErrDeclinedByRule(code, message string) *DomainError {
	return NewDomainError(ErrorCodeDeclinedByRule, KindBusinessRuleDecline, "declined by rule").
		WithDetail("ruleCode", code).
		WithDetail("ruleMessage", message)
}

func ErrAntifraudDeclined(reason string) *DomainError {
	return NewDomainError(ErrorCodeAntifraudDeclined, KindBusinessRuleDecline, "declined by antifraud").
		WithDetail("reason", reason)
}

func ErrThreeDSDeclined(reason string) *DomainError {
	return NewDomainError(ErrorCodeThreeDSDeclined, KindBusinessRuleDecline, "3DS validation failed").
		WithDetail("reason", reason)
}

func ErrReceivableRejected(ticket string) *DomainError {
	return NewDomainError(ErrorCodeReceivableRejected, KindBusinessRuleDecline, "transaction already settled to merchant").
		WithDetail("ticketNumber", ticket)
}

func ErrBinDenied(bin string) *DomainError {
	return NewDomainError(ErrorCodeBinDenied, KindValidation, "card bin not allowed").
		WithDetail("bin", bin)
}

func ErrInvalidCard(reason string) *DomainError {
	return NewDomainError(ErrorCodeInvalidCard, KindValidation, "invalid card").
		WithDetail("reason", reason)
}

func ErrCVVOmissionDenied() *DomainError {
	return NewDomainError(ErrorCodeCVVOmissionDenied, KindValidation, "cvv is required for this merchant")
}

func ErrProcessorDeclined(procErr *ProcessorError) *DomainError {
	return WrapError(ErrorCodeProcessorDeclined, KindProcessorDeclined, "declined by processor", procErr).
		WithDetail("processorCode", procErr.ProcessorCode).
		WithDetail("processorMessage", procErr.ProcessorMessage)
}

func ErrProcessorUnreachable(processorName string, err error) *DomainError {
	return WrapError(ErrorCodeProcessorUnreachable, KindReachability, "processor unreachable", err).
		WithDetail("processor", processorName)
}

func ErrInternal(err error) *DomainError {
	return WrapError(ErrorCodeInternal, KindInfrastructure, "internal error", err)
}

var (
	// ErrBudgetExhausted is returned when the request deadline leaves no room for another step
	ErrBudgetExhausted = errors.New("request time budget exhausted")
)
