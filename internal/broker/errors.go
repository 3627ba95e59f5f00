package broker

import "github.com/benagen/slobtrading/internal/errs"

// Severity is the logging level an error code's numeric band maps to,
// per spec §6: < 1000 informational, 1000-1999 warnings, >= 2000 errors.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Critical codes get specially handled regardless of their numeric band
// (spec §6's critical subset).
const (
	CodeInsufficientBuyingPower = 321
	CodeSessionDisconnected     = 502
	CodeConnectivityLost        = 1100
	CodeOrderIDExceeded         = 2103
	CodeConnectivityRestored    = 1102
)

// Classify assigns a Severity by numeric band and reports whether the
// code is in the critical subset that disables trading or forces a
// reconnect.
func Classify(code int) (sev Severity, critical bool) {
	switch {
	case code < 1000:
		sev = SeverityInfo
	case code < 2000:
		sev = SeverityWarn
	default:
		sev = SeverityError
	}

	switch code {
	case CodeInsufficientBuyingPower, CodeSessionDisconnected, CodeConnectivityLost, CodeOrderIDExceeded:
		critical = true
	case CodeConnectivityRestored:
		critical = false // informational only, per spec
	}
	return sev, critical
}

// Kind maps a critical error code to the errs.Kind that should gate
// trading or trigger reconnection. ok is false for non-critical codes.
func Kind(code int) (kind errs.Kind, reconnect bool, ok bool) {
	switch code {
	case CodeInsufficientBuyingPower:
		return errs.BrokerCritical, false, true
	case CodeSessionDisconnected, CodeConnectivityLost, CodeOrderIDExceeded:
		return errs.BrokerTransient, true, true
	case CodeConnectivityRestored:
		return "", false, false
	default:
		return "", false, false
	}
}
