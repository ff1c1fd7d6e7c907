package protocol

import (
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// ResultCode is an LDAPResult resultCode (RFC 4511 Section 4.1.9).
type ResultCode uint16

const (
	ResultSuccess                     ResultCode = 0
	ResultOperationsError             ResultCode = 1
	ResultProtocolError               ResultCode = 2
	ResultTimeLimitExceeded           ResultCode = 3
	ResultSizeLimitExceeded           ResultCode = 4
	ResultCompareFalse                ResultCode = 5
	ResultCompareTrue                 ResultCode = 6
	ResultAuthMethodNotSupported      ResultCode = 7
	ResultStrongerAuthRequired        ResultCode = 8
	ResultReferral                    ResultCode = 10
	ResultAdminLimitExceeded          ResultCode = 11
	ResultUnavailableCriticalExt      ResultCode = 12
	ResultConfidentialityRequired     ResultCode = 13
	ResultSaslBindInProgress          ResultCode = 14
	ResultNoSuchAttribute             ResultCode = 16
	ResultUndefinedAttributeType      ResultCode = 17
	ResultInappropriateMatching       ResultCode = 18
	ResultConstraintViolation         ResultCode = 19
	ResultAttributeOrValueExists      ResultCode = 20
	ResultInvalidAttributeSyntax      ResultCode = 21
	ResultNoSuchObject                ResultCode = 32
	ResultAliasProblem                ResultCode = 33
	ResultInvalidDNSyntax             ResultCode = 34
	ResultAliasDereferencingProblem   ResultCode = 36
	ResultInappropriateAuthentication ResultCode = 48
	ResultInvalidCredentials          ResultCode = 49
	ResultInsufficientAccessRights    ResultCode = 50
	ResultBusy                        ResultCode = 51
	ResultUnavailable                 ResultCode = 52
	ResultUnwillingToPerform          ResultCode = 53
	ResultLoopDetect                  ResultCode = 54
	ResultNamingViolation             ResultCode = 64
	ResultObjectClassViolation        ResultCode = 65
	ResultNotAllowedOnNonLeaf         ResultCode = 66
	ResultNotAllowedOnRDN             ResultCode = 67
	ResultEntryAlreadyExists          ResultCode = 68
	ResultObjectClassModsProhibited   ResultCode = 69
	ResultAffectsMultipleDSAs         ResultCode = 71
	ResultOther                       ResultCode = 80
)

func (c ResultCode) String() string {
	if text, ok := ldap.LDAPResultCodeMap[uint16(c)]; ok {
		return text
	}

	return fmt.Sprintf("Result Code %d", uint16(c))
}

// Result is the LDAPResult carried by every response except entries and
// references.
type Result struct {
	Code              ResultCode
	MatchedDN         string
	DiagnosticMessage string
	Referral          []string
}

// Err returns a *ResultError if the result is not a success, nil otherwise.
func (r Result) Err() error {
	if r.Code == ResultSuccess {
		return nil
	}

	return &ResultError{Result: r}
}

// ResultError is a directory-level failure. The request reached the server
// and the server refused it; the connection is still good.
type ResultError struct {
	Result Result
}

func (e *ResultError) Error() string {
	if e.Result.DiagnosticMessage == "" {
		return fmt.Sprintf("ldap: %s (%d)", e.Result.Code, uint16(e.Result.Code))
	}

	return fmt.Sprintf("ldap: %s (%d): %s", e.Result.Code, uint16(e.Result.Code), e.Result.DiagnosticMessage)
}
