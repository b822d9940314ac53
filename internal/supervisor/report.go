package supervisor

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/rizsotto/Bear-sub001/internal/recognizer"
)

// HostInfo captures the provenance fields rizsotto/Bear's create_host_info
// attached to every report via uname()/confstr(). Go has no portable
// equivalent of those libc calls, so this is the closest
// Go-native analogue: the runtime's own idea of OS and architecture plus
// the machine's hostname.
type HostInfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	Hostname string `json:"hostname"`
}

func newHostInfo() HostInfo {
	hostname, _ := os.Hostname()
	return HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH, Hostname: hostname}
}

// Report is what the supervisor writes to Config.Output once the build
// finishes: not the downstream compilation-database format itself (that
// serializer is out of scope per spec.md §1), but the provenance envelope
// and recognized entries the real serializer would consume.
type Report struct {
	BuildID     string             `json:"build_id"`
	SessionType string             `json:"session_type"`
	Host        HostInfo           `json:"host"`
	Executions  []recognizer.Entry `json:"executions"`
}

func writeReport(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
