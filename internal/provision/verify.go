// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

// verify checks that the container named name, with id, is running. With the default
// policy that is a single immediate check bounded by the timeout; more attempts poll
// with exponential backoff. A terminal state (exited, dead) ends the poll at once.
func (p *Provisioner) verify(
	ctx context.Context,
	id container.ContainerID,
	name container.ContainerName,
	policy servicefile.VerifyPolicy,
) error {
	vctx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	err := container.RetryWithBackoff(vctx, policy.Attempts, p.config.VerifyBackoff, func(attempt int) (bool, error) {
		p.logger.Debug("checking container state", "service", name, "step", StepVerify, "attempt", attempt+1)

		list, err := p.engine.List(vctx, name)
		if err != nil {
			return true, &VerificationError{Name: name, State: container.StateUnknown, Err: err}
		}

		state := container.StateUnknown
		for _, s := range list {
			if s.Name == name && sameContainer(s.ID, id) {
				state = s.State
				break
			}
		}
		if state == container.StateRunning {
			return false, nil
		}
		return !state.IsTerminal(), &VerificationError{Name: name, State: state}
	})
	if err == nil {
		return nil
	}

	var verr *VerificationError
	if errors.As(err, &verr) {
		return err
	}
	return &VerificationError{Name: name, State: container.StateUnknown, Err: err}
}

// sameContainer compares IDs that may be truncated on either side.
func sameContainer(listed, launched container.ContainerID) bool {
	if listed == "" || launched == "" {
		return true
	}
	return strings.HasPrefix(string(listed), string(launched)) || strings.HasPrefix(string(launched), string(listed))
}
