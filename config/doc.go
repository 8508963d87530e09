// Copyright 2021 The urlrequest Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads the settings of a URL request manager from a
// file and the environment, and builds the logger and option structs
// the library packages consume.
package config
