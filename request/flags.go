// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"strconv"
	"strings"
)

// Flags is a bitset of behavioral flags on a Descriptor.
type Flags uint32

const (
	// FlagSkipCache bypasses the response cache: the load is sent with
	// Cache-Control: no-cache.
	FlagSkipCache Flags = 1 << iota
	// FlagOnlyFromCache fails the load with a cache miss rather than
	// going to the network.
	FlagOnlyFromCache
	// FlagDisableCache neither reads from nor writes to the cache.
	FlagDisableCache
	// FlagAllowStoredCredentials sends and stores cookies for the
	// request's origin.
	FlagAllowStoredCredentials
	// FlagReportUploadProgress delivers upload progress to the client.
	FlagReportUploadProgress
	// FlagNoDownloadData fetches response headers only.
	FlagNoDownloadData
	// FlagNoRetryOn5xx disables automatic retries on server errors and
	// network changes.
	FlagNoRetryOn5xx
	// FlagStopOnRedirect cancels the request at the first redirect
	// instead of following it.
	FlagStopOnRedirect
)

// FlagNone is the empty flag set.
const FlagNone Flags = 0

var flagNames = []string{
	"SkipCache",
	"OnlyFromCache",
	"DisableCache",
	"AllowStoredCredentials",
	"ReportUploadProgress",
	"NoDownloadData",
	"NoRetryOn5xx",
	"StopOnRedirect",
}

// Has reports whether every bit of g is set in f.
func (f Flags) Has(g Flags) bool {
	return f&g == g
}

// String returns the names of the set flags joined with "|", or "None".
func (f Flags) String() string {
	if f == FlagNone {
		return "None"
	}
	var names []string
	for i, name := range flagNames {
		if f&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	if rest := f &^ (1<<uint(len(flagNames)) - 1); rest != 0 {
		names = append(names, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(names, "|")
}

// ParseFlag returns the flag named name. Names are those produced by
// String and are matched case-insensitively.
func ParseFlag(name string) (Flags, error) {
	for i, n := range flagNames {
		if strings.EqualFold(n, name) {
			return 1 << uint(i), nil
		}
	}
	return FlagNone, errors.New("urlrequest/request: unknown flag " + strconv.Quote(name))
}
