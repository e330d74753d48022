// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build race

package testutil

// RaceEnabled reports whether the binary was built with -race, so tests can
// cut their iteration counts accordingly.
const RaceEnabled = true
