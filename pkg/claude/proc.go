package claude

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const killGracePeriod = 3 * time.Second

// setProcessGroup puts the spawned process in its own process group so
// that termination reaches its children too.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateProcess sends SIGTERM to the process group and escalates to
// SIGKILL after a grace period if the group is still alive.
func terminateProcess(cmd *exec.Cmd, logger zerolog.Logger) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		// No process group; fall back to the process itself.
		if err := cmd.Process.Kill(); err != nil {
			logger.Debug().Err(err).Int("pid", pid).Msg("Failed to kill process")
		}
		return
	}

	time.AfterFunc(killGracePeriod, func() {
		if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
			logger.Warn().Int("pid", pid).Msg("Process killed after grace period")
		}
	})
}
