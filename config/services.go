package config

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceMode names an API surface the gateway can mount.
type ServiceMode string

const (
	// ServiceModeAdmin mounts the operations console API under /api/admin.
	ServiceModeAdmin ServiceMode = "admin"
	// ServiceModeVisitor mounts the visitor API under /api/visitor.
	ServiceModeVisitor ServiceMode = "visitor"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeAdmin, ServiceModeVisitor}
}

// ParseServices parses a comma-delimited string of surface names and returns the enabled ones.
// It validates that all names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if strings.TrimSpace(servicesStr) == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(strings.ToLower(serviceName))
		switch mode {
		case ServiceModeAdmin, ServiceModeVisitor:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: admin, visitor)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ResourcesConfig holds the backend resource allowlists per surface.
type ResourcesConfig struct {
	Admin []string `env:"ADMIN_RESOURCES" envDefault:"achievements,quests,quest-submissions,visitor-profiles,alerts,releases,policies,evidence-gates,iot-devices,sites,tenants,feedback" envSeparator:","`

	Visitor []string `env:"VISITOR_RESOURCES" envDefault:"achievements,quests,profile,feedback,sites,checkins" envSeparator:","`
}

// Sanitize trims, lowercases and de-duplicates resource names.
func (r *ResourcesConfig) Sanitize() {
	r.Admin = normalizeResources(r.Admin)
	r.Visitor = normalizeResources(r.Visitor)
}

func normalizeResources(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.Trim(strings.TrimSpace(v), "/"))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
