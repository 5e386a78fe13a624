//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// setProcessGroup makes the target a group leader so a timeout kills its children too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
