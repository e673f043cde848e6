package errors

import (
	"github.com/mezonai/herder/jsonx"
)

// HerderErrorCode classifies why a Herder-level policy decision went the way it did.
type HerderErrorCode string

const (
	ErrCodeInternal HerderErrorCode = "internal_error"

	// Decoding / signature failures (hard rejects)
	ErrCodeDecodeFailure    HerderErrorCode = "decode_failure"
	ErrCodeSignatureInvalid HerderErrorCode = "signature_invalid"

	// Policy rejections (soft: cb(false), logged at debug)
	ErrCodeSlotMismatch    HerderErrorCode = "slot_mismatch"
	ErrCodeStaleCloseTime  HerderErrorCode = "stale_close_time"
	ErrCodeInvalidTxSet    HerderErrorCode = "invalid_txset"
	ErrCodeTimeSlip        HerderErrorCode = "time_slip"
	ErrCodeCounterRate     HerderErrorCode = "counter_rate_exceeded"
	ErrCodeFeeOutOfRange   HerderErrorCode = "fee_out_of_range"
	ErrCodeUntrustedNode   HerderErrorCode = "untrusted_node"
	ErrCodeSelfEnvelope    HerderErrorCode = "self_envelope_as_watcher"
	ErrCodeOutOfBracket    HerderErrorCode = "ledger_validity_bracket_exceeded"
	ErrCodeDuplicateTx     HerderErrorCode = "duplicate_transaction"
	ErrCodeInsufficientFee HerderErrorCode = "insufficient_balance_for_fee"
)

// HerderError is a structured rejection reason carried through cb(false) paths.
// It is never itself panic-worthy; callers log it and move on.
type HerderError struct {
	Code    HerderErrorCode `json:"code"`
	Message string          `json:"message"`
}

func (e *HerderError) Error() string {
	out, _ := jsonx.Marshal(e)
	return string(out)
}

func NewError(code HerderErrorCode, message string) error {
	return &HerderError{Code: code, Message: message}
}
