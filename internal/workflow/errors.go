// internal/workflow/errors.go
package workflow

import "errors"

var errNoArtifacts = errors.New("artifact pipeline is not configured")
