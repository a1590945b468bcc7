package lifecycle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/ctfleet/instancer/internal/settings"
)

// resourceLimits validates the configured memory and CPU caps. Empty values
// disable the corresponding limit; present but unparsable or non-positive
// values are a configuration error and fail the request.
func resourceLimits(st settings.Settings) (memoryMB int64, cpu float64, err error) {
	if st.MaxMemoryMB != "" {
		v, perr := strconv.ParseInt(st.MaxMemoryMB, 10, 64)
		if perr != nil {
			return 0, 0, fmt.Errorf("%w: memory limit %q must be an integer", ErrInvalidResourceLimit, st.MaxMemoryMB)
		}
		if v > 0 {
			memoryMB = v
		}
	}
	if st.MaxCPU != "" {
		v, perr := strconv.ParseFloat(st.MaxCPU, 64)
		if perr != nil || v <= 0 {
			return 0, 0, fmt.Errorf("%w: cpu limit %q must be a positive number", ErrInvalidResourceLimit, st.MaxCPU)
		}
		cpu = v
	}
	return memoryMB, cpu, nil
}

// volumeSpec mirrors the serialized mapping a challenge template carries:
// host path -> {bind: container path, mode: rw|ro}.
type volumeSpec struct {
	Bind string `json:"bind"`
	Mode string `json:"mode"`
}

// parseVolumes turns the challenge's volumes JSON into engine bind strings.
// An empty string means no volumes. Binds are sorted so the engine call is
// deterministic.
func parseVolumes(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var mapping map[string]volumeSpec
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVolumeSpec, err)
	}
	binds := make([]string, 0, len(mapping))
	for host, spec := range mapping {
		if spec.Bind == "" {
			return nil, fmt.Errorf("%w: no bind path for %q", ErrInvalidVolumeSpec, host)
		}
		bind := host + ":" + spec.Bind
		if spec.Mode != "" {
			bind += ":" + spec.Mode
		}
		binds = append(binds, bind)
	}
	sort.Strings(binds)
	return binds, nil
}
