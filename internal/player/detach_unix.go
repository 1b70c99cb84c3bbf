//go:build unix

package player

import (
	"os/exec"
	"syscall"
)

// detach puts the player in a new session so closing the invoking terminal
// or browser does not take it down.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
