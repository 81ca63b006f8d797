// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package version

import "runtime/debug"

var (
	// Version is set at link time with
	// -ldflags "-X github.com/gocmr/cmr/sdk/go/version.Version=1.2.3"
	Version string
)

// GetVersion returns the release number if it was assigned by the
// linker, otherwise the module version recorded in the binary, or
// "dev".
func GetVersion() string {
	if Version != "" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "dev"
}
