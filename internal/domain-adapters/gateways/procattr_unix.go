//go:build unix

package gateways

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the command in its own process group so the
// analyzer's JVM children die with it
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
