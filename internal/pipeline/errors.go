// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"

	"github.com/pdiddy/paperflow/pkg/types"
)

// StageError reports the stage a run failed in. It unwraps to the stage's
// own error, so errors.Is against the stage sentinels works.
type StageError struct {
	Stage types.RunState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
