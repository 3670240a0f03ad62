package eml

import "strings"

// parseAuthentication reads SPF, DKIM and DMARC outcomes recorded by upstream
// servers. It only inspects headers; nothing is re-verified.
func parseAuthentication(email *ParsedEmail) AuthenticationResult {
	authResults, _ := email.Header("Authentication-Results")
	receivedSPF, _ := email.Header("Received-SPF")
	dkimSignature, hasDKIM := email.Header("DKIM-Signature")

	ar := strings.ToLower(authResults)
	spf := strings.ToLower(receivedSPF)

	result := AuthenticationResult{
		SPFStatus:   spfStatus(ar, spf),
		DKIMStatus:  StatusUnknown,
		DMARCStatus: StatusUnknown,
	}

	switch {
	case strings.Contains(ar, "dkim=pass"):
		result.DKIMStatus = StatusPass
	case strings.Contains(ar, "dkim=fail"):
		result.DKIMStatus = StatusFail
	case hasDKIM:
		result.DKIMStatus = StatusPresent
	}

	switch {
	case strings.Contains(ar, "dmarc=pass"):
		result.DMARCStatus = StatusPass
	case strings.Contains(ar, "dmarc=fail"):
		result.DMARCStatus = StatusFail
	case strings.Contains(ar, "dmarc=none"):
		result.DMARCStatus = StatusNone
	}

	if receivedSPF != "" {
		result.SPF = &receivedSPF
	}
	if hasDKIM {
		result.DKIM = &dkimSignature
	}
	if authResults != "" {
		result.DMARC = &authResults
	}

	return result
}

// spfStatus prefers an explicit spf=fail in Authentication-Results. In
// Received-SPF, softfail is checked ahead of fail since "softfail" contains
// "fail".
func spfStatus(authResults, receivedSPF string) string {
	switch {
	case strings.Contains(authResults, "spf=pass") || strings.Contains(receivedSPF, "pass"):
		return StatusPass
	case strings.Contains(authResults, "spf=fail"):
		return StatusFail
	case strings.Contains(authResults, "spf=softfail") || strings.Contains(receivedSPF, "softfail"):
		return StatusSoftFail
	case strings.Contains(receivedSPF, "fail"):
		return StatusFail
	case strings.Contains(authResults, "spf=neutral") || strings.Contains(receivedSPF, "neutral"):
		return StatusNeutral
	default:
		return StatusUnknown
	}
}
