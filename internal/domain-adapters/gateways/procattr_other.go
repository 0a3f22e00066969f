//go:build !unix

package gateways

import "os/exec"

// configureProcessGroup keeps exec's default of killing the direct child
func configureProcessGroup(_ *exec.Cmd) {}
