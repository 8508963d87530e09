// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package neterror defines the numeric network error codes attached to
// a URL request's response record, and maps Go errors onto them.
//
// Code values are negative, match the well-known Chromium net error
// numbering, and are stable across releases. OK (zero) means no error.
package neterror

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/gogama/urlrequest/transient"
)

// A Code is a network error code. Code implements error, so a Code can
// be returned, wrapped, and later recovered with errors.As.
type Code int

const (
	OK                       Code = 0
	ErrFailed                Code = -2
	ErrAborted               Code = -3
	ErrInvalidArgument       Code = -4
	ErrFileNotFound          Code = -6
	ErrTimedOut              Code = -7
	ErrUnexpected            Code = -9
	ErrAccessDenied          Code = -10
	ErrNotImplemented        Code = -11
	ErrNetworkChanged        Code = -21
	ErrConnectionClosed      Code = -100
	ErrConnectionReset       Code = -101
	ErrConnectionRefused     Code = -102
	ErrConnectionAborted     Code = -103
	ErrConnectionFailed      Code = -104
	ErrNameNotResolved       Code = -105
	ErrInternetDisconnected  Code = -106
	ErrSSLProtocolError      Code = -107
	ErrAddressUnreachable    Code = -109
	ErrConnectionTimedOut    Code = -118
	ErrCertCommonNameInvalid Code = -200
	ErrCertDateInvalid       Code = -201
	ErrCertAuthorityInvalid  Code = -202
	ErrCertInvalid           Code = -207
	ErrInvalidURL            Code = -300
	ErrDisallowedURLScheme   Code = -301
	ErrUnknownURLScheme      Code = -302
	ErrTooManyRedirects      Code = -310
	ErrUnsafeRedirect        Code = -311
	ErrInvalidResponse       Code = -320
	ErrEmptyResponse         Code = -324
	ErrHTTPResponseCode      Code = -370
	ErrCacheMiss             Code = -400
	ErrInsecureResponse      Code = -501
)

var codeNames = map[Code]string{
	OK:                       "OK",
	ErrFailed:                "ERR_FAILED",
	ErrAborted:               "ERR_ABORTED",
	ErrInvalidArgument:       "ERR_INVALID_ARGUMENT",
	ErrFileNotFound:          "ERR_FILE_NOT_FOUND",
	ErrTimedOut:              "ERR_TIMED_OUT",
	ErrUnexpected:            "ERR_UNEXPECTED",
	ErrAccessDenied:          "ERR_ACCESS_DENIED",
	ErrNotImplemented:        "ERR_NOT_IMPLEMENTED",
	ErrNetworkChanged:        "ERR_NETWORK_CHANGED",
	ErrConnectionClosed:      "ERR_CONNECTION_CLOSED",
	ErrConnectionReset:       "ERR_CONNECTION_RESET",
	ErrConnectionRefused:     "ERR_CONNECTION_REFUSED",
	ErrConnectionAborted:     "ERR_CONNECTION_ABORTED",
	ErrConnectionFailed:      "ERR_CONNECTION_FAILED",
	ErrNameNotResolved:       "ERR_NAME_NOT_RESOLVED",
	ErrInternetDisconnected:  "ERR_INTERNET_DISCONNECTED",
	ErrSSLProtocolError:      "ERR_SSL_PROTOCOL_ERROR",
	ErrAddressUnreachable:    "ERR_ADDRESS_UNREACHABLE",
	ErrConnectionTimedOut:    "ERR_CONNECTION_TIMED_OUT",
	ErrCertCommonNameInvalid: "ERR_CERT_COMMON_NAME_INVALID",
	ErrCertDateInvalid:       "ERR_CERT_DATE_INVALID",
	ErrCertAuthorityInvalid:  "ERR_CERT_AUTHORITY_INVALID",
	ErrCertInvalid:           "ERR_CERT_INVALID",
	ErrInvalidURL:            "ERR_INVALID_URL",
	ErrDisallowedURLScheme:   "ERR_DISALLOWED_URL_SCHEME",
	ErrUnknownURLScheme:      "ERR_UNKNOWN_URL_SCHEME",
	ErrTooManyRedirects:      "ERR_TOO_MANY_REDIRECTS",
	ErrUnsafeRedirect:        "ERR_UNSAFE_REDIRECT",
	ErrInvalidResponse:       "ERR_INVALID_RESPONSE",
	ErrEmptyResponse:         "ERR_EMPTY_RESPONSE",
	ErrHTTPResponseCode:      "ERR_HTTP_RESPONSE_CODE_FAILURE",
	ErrCacheMiss:             "ERR_CACHE_MISS",
	ErrInsecureResponse:      "ERR_INSECURE_RESPONSE",
}

// String returns the symbolic name of the code, for example
// "ERR_ABORTED".
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ERR_%d", int(c))
}

// Error returns the code formatted the way network stacks report it,
// for example "net::ERR_ABORTED".
func (c Code) Error() string {
	return "net::" + c.String()
}

// FromError maps err onto a network error code.
//
// A nil error maps to OK. If err wraps a Code, that code is returned.
// Context cancellation maps to ErrAborted. Otherwise the mapping looks
// at the transience category of err (see package transient), then at
// well-known standard library error types. Anything unrecognized is
// ErrFailed.
func FromError(err error) Code {
	if err == nil {
		return OK
	}

	var c Code
	if errors.As(err, &c) {
		return c
	}

	if errors.Is(err, context.Canceled) {
		return ErrAborted
	}

	switch transient.Categorize(err) {
	case transient.Timeout:
		return ErrTimedOut
	case transient.ConnRefused:
		return ErrConnectionRefused
	case transient.ConnReset:
		return ErrConnectionReset
	case transient.NetworkChanged:
		return ErrNetworkChanged
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrNameNotResolved
	}

	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return ErrCertCommonNameInvalid
	}
	var authorityErr x509.UnknownAuthorityError
	if errors.As(err, &authorityErr) {
		return ErrCertAuthorityInvalid
	}
	var certErr x509.CertificateInvalidError
	if errors.As(err, &certErr) {
		if certErr.Reason == x509.Expired {
			return ErrCertDateInvalid
		}
		return ErrCertInvalid
	}

	switch {
	case errors.Is(err, os.ErrNotExist):
		return ErrFileNotFound
	case errors.Is(err, os.ErrPermission):
		return ErrAccessDenied
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrConnectionClosed
	case errors.Is(err, io.EOF):
		return ErrEmptyResponse
	}

	return ErrFailed
}
