package tenant

import (
	"os"
	"syscall"
	"time"

	"bubblbridge/pkg/logx"
)

// ExecRestarter relaunches the current binary in place via execve, so the
// new process bootstraps from the freshly persisted tenant. If the re-exec
// fails it exits nonzero and leaves the relaunch to the service supervisor.
type ExecRestarter struct {
	Log logx.Logger

	// Grace gives the in-flight boot call time to resolve before the image
	// is replaced. Zero means a short default.
	Grace time.Duration
}

func (r ExecRestarter) Restart() {
	grace := r.Grace
	if grace == 0 {
		grace = 250 * time.Millisecond
	}
	time.Sleep(grace)

	exe, err := os.Executable()
	if err == nil {
		r.Log.Info("restarting for tenant change", logx.String("exe", exe))
		err = syscall.Exec(exe, os.Args, os.Environ())
	}
	r.Log.Error("re-exec failed, exiting for supervisor restart", logx.Err(err))
	os.Exit(1)
}
