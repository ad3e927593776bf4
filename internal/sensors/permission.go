// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"golang.org/x/sys/unix"
)

// PermissionChecker reports whether the process may read the location device.
type PermissionChecker interface {
	LocationGranted() bool
}

// DevicePermission grants location access when the GPS device node is
// readable by the current process (group membership, udev rules).
type DevicePermission struct {
	Path string
}

func (p DevicePermission) LocationGranted() bool {
	if p.Path == "" {
		return false
	}
	return unix.Access(p.Path, unix.R_OK) == nil
}

// StaticPermission is a fixed grant, used for mock mode and forced configs.
type StaticPermission bool

func (p StaticPermission) LocationGranted() bool { return bool(p) }
