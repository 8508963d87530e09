// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package transient classifies errors from network loads as transient
// or non-transient. The URL loader's retry policy uses it to decide
// whether a failed attempt is worth retrying after a network change, and
// package neterror uses it to map errors onto network error codes.
//
// Package transient is extremely lightweight, as it depends only on
// the standard library packages "errors" and "syscall", so it doesn't
// bring any significant dependencies when imported as a standalone
// package.
package transient
