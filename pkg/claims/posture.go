package claims

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DetectPosture classifies the current host's integrity state from
// best-effort platform signals. It never fails: when no signal is
// conclusive the result is PostureUnknown, which is itself a valid input
// to the issuer's policy decision.
func DetectPosture() SecurityPosture {
	if debuggerAttached() {
		return PostureDebugAttached
	}

	switch secureBootEnabled() {
	case stateOn:
		return PostureSecure
	case stateOff:
		return PostureCompromised
	}

	return PostureUnknown
}

type triState uint8

const (
	stateUnknown triState = iota
	stateOn
	stateOff
)

// debuggerAttached checks /proc/self/status for a nonzero TracerPid.
func debuggerAttached() bool {
	data, err := os.ReadFile("/proc/self/status")
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "TracerPid:") {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "TracerPid:")))
		return err == nil && pid != 0
	}
	return false
}

// secureBootEnabled reads the SecureBoot EFI variable. The variable name
// carries a GUID suffix; format is 4 attribute bytes then 1 value byte.
func secureBootEnabled() triState {
	files, err := filepath.Glob("/sys/firmware/efi/efivars/SecureBoot-*")
	if err != nil || len(files) == 0 {
		return stateUnknown
	}

	data, err := os.ReadFile(files[0])
	if err != nil || len(data) < 5 {
		return stateUnknown
	}

	if data[4] == 1 {
		return stateOn
	}
	return stateOff
}
