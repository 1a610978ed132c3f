//go:build windows

package adapter

import (
	"os/exec"

	"github.com/kolesnikovae/go-winjob"
)

// startInGroup starts cmd inside a Windows Job object configured to
// kill every process in the job when the job handle is closed, so
// terminating the adapter's tracked instance also reaps any worker
// processes the runtime forked.
func startInGroup(cmd *exec.Cmd) (func() error, error) {
	job, err := winjob.Start(cmd, winjob.WithKillOnJobClose())
	if err != nil {
		return nil, err
	}
	return job.Close, nil
}
