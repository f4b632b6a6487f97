package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external program sxvrs runs.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CommandBinary returns the program a shell command line starts, skipping
// leading VAR=value assignments and an exec prefix. Templated programs such
// as "{cmd}" yield "".
func CommandBinary(command string) string {
	for _, field := range strings.Fields(command) {
		if field == "exec" {
			continue
		}
		if name, _, ok := strings.Cut(field, "="); ok && name != "" && !strings.ContainsAny(name, "/{") {
			continue
		}
		if strings.ContainsAny(field, "{}$`|&;<>()") {
			return ""
		}
		return strings.Trim(field, `"'`)
	}
	return ""
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, st := range statuses {
		if !st.Available && !st.Optional {
			out = append(out, st)
		}
	}
	return out
}
