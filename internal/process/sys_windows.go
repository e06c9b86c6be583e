//go:build windows
// +build windows

package process

/**
 * Code in this file is based on the source code at
 * https://github.com/hashicorp/consul-template/tree/3ea7d99ad8eff17897e0d63dac86d74770170bb8/child/sys_windows.go
 */

import (
	"os"
	"os/exec"
)

func setSetpgid(cmd *exec.Cmd, value bool) {}

func processNotFoundErr(err error) bool {
	return false
}

// terminateSignal is the graceful-stop signal sent before the grace period
// force-kill. Windows has no process-group SIGTERM equivalent reachable
// through os.Process.Signal, so this falls straight through to the same
// kill Stop() uses once the grace period elapses.
func terminateSignal() os.Signal {
	return os.Kill
}
