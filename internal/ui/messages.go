// Package ui provides TUI view messages shared between components.
package ui

import (
	"github.com/aayushdutt/mcinstall/internal/install"
)

// Action messages
type (
	// InstallStatusUpdate is sent during an install
	InstallStatusUpdate struct {
		Status install.Status
	}

	// InstallComplete is sent when the install finishes. Report may be nil
	// when the version could not be resolved.
	InstallComplete struct {
		Report *install.Report
		Error  error
	}
)
