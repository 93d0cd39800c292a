package weaver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/autodispose/asm"
	"github.com/wippyai/autodispose/errors"
	"github.com/wippyai/autodispose/module"
)

// ConfigFileName is the conventional name of the configuration file.
const ConfigFileName = "autodispose.toml"

// File is an autodispose.toml configuration.
type File struct {
	Capability FileCapability `toml:"capability"`
	Filter     Filter         `toml:"filter"`
	Run        Run            `toml:"run"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// FileCapability overrides the disposal interface and method.
type FileCapability struct {
	Interface string `toml:"interface"`
	Method    string `toml:"method"`
}

// Filter selects methods with wildcard patterns.
type Filter struct {
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`
}

// Run configures execution.
type Run struct {
	Parallelism int      `toml:"parallelism"`
	Verify      bool     `toml:"verify"`
	References  []string `toml:"references"`
}

// LoadConfig parses a configuration file. Unknown keys are an error.
func LoadConfig(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot read "+path)
	}
	f, err := ParseConfig(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return f, nil
}

// ParseConfig parses configuration text. References resolve against the
// working directory until Dir is set.
func ParseConfig(data string) (*File, error) {
	var f File
	md, err := toml.Decode(data, &f)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse error")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	if f.Run.Parallelism < 0 {
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("parallelism %d is negative", f.Run.Parallelism))
	}
	return &f, nil
}

// ReferencePaths returns the reference module paths resolved against Dir.
func (f *File) ReferencePaths() []string {
	paths := make([]string, 0, len(f.Run.References))
	for _, p := range f.Run.References {
		if !filepath.IsAbs(p) && f.Dir != "" {
			p = filepath.Join(f.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// Config converts the file into a weaver configuration, loading the
// referenced modules.
func (f *File) Config() (Config, error) {
	cfg := Config{
		Capability: Capability{
			Interface: f.Capability.Interface,
			Method:    f.Capability.Method,
		},
		Parallelism: f.Run.Parallelism,
		Verify:      f.Run.Verify,
	}
	if len(f.Filter.Include) > 0 {
		cfg.Include = NewWildcardMatcher(f.Filter.Include)
	}
	if len(f.Filter.Exclude) > 0 {
		cfg.Exclude = NewWildcardMatcher(f.Filter.Exclude)
	}
	if len(f.Run.References) > 0 {
		refs, err := LoadReferences(f.ReferencePaths()...)
		if err != nil {
			return Config{}, err
		}
		cfg.References = refs
	}
	return cfg, nil
}

// LoadModule reads a module from an image, or from assembler text when the
// file ends in .asm or .il.
func LoadModule(path string) (*module.Module, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asm", ".il":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Load("read "+path, err)
		}
		m, err := asm.Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return m, nil
	default:
		return module.Load(path)
	}
}

// LoadReferences loads modules into a resolver searched in the given order.
func LoadReferences(paths ...string) (*module.Resolver, error) {
	res := module.NewResolver()
	for _, p := range paths {
		m, err := LoadModule(p)
		if err != nil {
			return nil, fmt.Errorf("reference: %w", err)
		}
		res.Add(m)
	}
	return res, nil
}
