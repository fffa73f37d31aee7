package common

import "os/user"

// IsRunningAsRoot reports whether the process may install a system service.
func IsRunningAsRoot() bool {
	usr, err := user.Current()
	if err != nil {
		return false
	}
	return usr.Uid == "0"
}
