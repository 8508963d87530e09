// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package transient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	dial := func(err error) error {
		return &url.Error{
			Op:  "Get",
			URL: "http://example.test/",
			Err: &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", err)},
		}
	}
	testCases := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil", nil, Not},
		{"plain", errors.New("boom"), Not},
		{"wrapped plain", fmt.Errorf("reading body: %w", errors.New("boom")), Not},
		{"permission", syscall.EPERM, Not},
		{"errno timeout", syscall.ETIMEDOUT, Timeout},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"timeout method", timeoutErr(true), Timeout},
		{"timeout method false", timeoutErr(false), Not},
		{"dial timeout", dial(syscall.ETIMEDOUT), Timeout},
		{"refused", syscall.ECONNREFUSED, ConnRefused},
		{"dial refused", dial(syscall.ECONNREFUSED), ConnRefused},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), ConnReset},
		{"network down", syscall.ENETDOWN, NetworkChanged},
		{"dial unreachable", dial(syscall.ENETUNREACH), NetworkChanged},
		{"network reset", fmt.Errorf("write: %w", syscall.ENETRESET), NetworkChanged},
		{"address gone", dial(syscall.EADDRNOTAVAIL), NetworkChanged},
		{"timeout wins over reset", &timeoutWrapper{syscall.ECONNRESET}, Timeout},
		{"timeout wins over network change", &timeoutWrapper{syscall.ENETDOWN}, Timeout},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, Categorize(testCase.err))
		})
	}
}

func TestCategory_String(t *testing.T) {
	for i, name := range []string{"Not", "Timeout", "ConnRefused", "ConnReset", "NetworkChanged"} {
		assert.Equal(t, name, Category(i).String())
	}
	assert.Equal(t, "Unknown", Category(99).String())
	assert.Equal(t, "Unknown", Category(-1).String())
}

type timeoutErr bool

func (err timeoutErr) Error() string { return fmt.Sprintf("timeout=%t", bool(err)) }
func (err timeoutErr) Timeout() bool { return bool(err) }

type timeoutWrapper struct {
	cause error
}

func (err *timeoutWrapper) Error() string { return "i/o timeout: " + err.cause.Error() }
func (err *timeoutWrapper) Timeout() bool { return true }
func (err *timeoutWrapper) Unwrap() error { return err.cause }
