package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/ini.v1"
)

// Registry validation failures. Both are fatal: the process must not start
// polling with a broken registry.
var (
	ErrMissingID   = errors.New("registry section has no id")
	ErrDuplicateID = errors.New("duplicate instance id")
)

// RegistryFileName is the default registry path, relative to the working
// directory.
const RegistryFileName = "instances.ini"

// defaultsSection is the registry section holding inheritable connection
// settings. ini.v1 also treats the unnamed top-of-file section as DEFAULT,
// so bare `user = ...` lines above the first section work too.
const defaultsSection = "defaults"

// InstanceConfig is the static configuration for one tracked instance.
// Immutable after load.
type InstanceConfig struct {
	// ID is the provider-assigned instance id, e.g. "i-0abc...".
	ID string
	// DisplayName is the registry section name.
	DisplayName string
	// SSHUser is the remote login user.
	SSHUser string
	// RemoteDirectory is the directory to open in the editor. May be empty.
	RemoteDirectory string
	// UserOverridden and DirectoryOverridden record whether the value came
	// from the instance's own section rather than the defaults section.
	UserOverridden      bool
	DirectoryOverridden bool
}

// Registry holds the loaded instance configurations in declaration order.
type Registry struct {
	instances []InstanceConfig
	byID      map[string]int
}

// LoadRegistry reads and validates the registry file. A section without an
// id, or two sections sharing an id, is a fatal configuration error.
func LoadRegistry(path string, defaultSSHUser string) (*Registry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("registry file %s: %w", path, err)
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}

	defUser := defaultSSHUser
	defDirectory := ""
	for _, name := range []string{ini.DefaultSection, defaultsSection} {
		def := lookupSection(f, name)
		if def == nil {
			continue
		}
		if v := def.Key("user").String(); v != "" {
			defUser = v
		}
		if v := def.Key("directory").String(); v != "" {
			defDirectory = v
		}
	}

	r := &Registry{byID: make(map[string]int)}
	for _, section := range f.Sections() {
		name := section.Name()
		if name == ini.DefaultSection || name == defaultsSection {
			continue
		}

		id := section.Key("id").String()
		if id == "" {
			return nil, fmt.Errorf("%w: section %q", ErrMissingID, name)
		}
		if prev, ok := r.byID[id]; ok {
			return nil, fmt.Errorf("%w: %s used by sections %q and %q",
				ErrDuplicateID, id, r.instances[prev].DisplayName, name)
		}

		cfg := InstanceConfig{
			ID:              id,
			DisplayName:     name,
			SSHUser:         defUser,
			RemoteDirectory: defDirectory,
		}
		if v := section.Key("user").String(); v != "" {
			cfg.SSHUser = v
			cfg.UserOverridden = true
		}
		if v := section.Key("directory").String(); v != "" {
			cfg.RemoteDirectory = v
			cfg.DirectoryOverridden = true
		}

		r.byID[id] = len(r.instances)
		r.instances = append(r.instances, cfg)
	}

	if len(r.instances) == 0 {
		return nil, fmt.Errorf("registry file %s defines no instances", path)
	}

	return r, nil
}

func lookupSection(f *ini.File, name string) *ini.Section {
	s, err := f.GetSection(name)
	if err != nil {
		return nil
	}
	return s
}

// Get returns the configuration for an id.
func (r *Registry) Get(id string) (InstanceConfig, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return InstanceConfig{}, false
	}
	return r.instances[idx], true
}

// All returns the configurations in declaration order.
func (r *Registry) All() []InstanceConfig {
	out := make([]InstanceConfig, len(r.instances))
	copy(out, r.instances)
	return out
}

// IDs returns the instance ids in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.instances))
	for i, cfg := range r.instances {
		ids[i] = cfg.ID
	}
	return ids
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	return len(r.instances)
}
