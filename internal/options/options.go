// Package options holds the compiler options consumed by the optimization phases and
// the compilation driver. Options come from built-in profiles, YAML files and JITOPT_*
// environment variables, in that order of precedence from lowest to highest.
package options

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/xyproto/env/v2"
	"gopkg.in/yaml.v3"
)

// Options toggles optional optimizer behavior. The zero value is not useful; start from
// Default.
type Options struct {
	// Profile names the built-in profile the file starts from
	Profile string `yaml:"profile,omitempty"`

	MoveGuardsUpwards           bool `yaml:"moveGuardsUpwards"`
	FieldAccessSkipPreciseTypes bool `yaml:"fieldAccessSkipPreciseTypes"`
	OptFloatingReads            bool `yaml:"optFloatingReads"`
	FullUnroll                  bool `yaml:"fullUnroll"`
	LoopPeeling                 bool `yaml:"loopPeeling"`
	PartialUnroll               bool `yaml:"partialUnroll"`

	// CanonicalizerMaxIterations caps worklist pops per node count
	CanonicalizerMaxIterations int `yaml:"canonicalizerMaxIterations"`
	// ConditionalEliminationMaxIterations caps rounds of the iterative driver
	ConditionalEliminationMaxIterations int `yaml:"conditionalEliminationMaxIterations"`

	VerifyGraph        bool `yaml:"verifyGraph"`
	VerifyLoopProgress bool `yaml:"verifyLoopProgress"`
	VerifySafepoints   bool `yaml:"verifySafepoints"`

	WatchdogSeconds int `yaml:"watchdogSeconds"` // 0 disables the watchdog
	MaxRetries      int `yaml:"maxRetries"`
	Workers         int `yaml:"workers"`
	EvalStepLimit   int `yaml:"evalStepLimit"`
}

// Default returns the default profile
func Default() Options {
	return Options{
		Profile:                             "default",
		MoveGuardsUpwards:                   true,
		OptFloatingReads:                    true,
		CanonicalizerMaxIterations:          64,
		ConditionalEliminationMaxIterations: 8,
		VerifyGraph:                         true,
		VerifyLoopProgress:                  true,
		VerifySafepoints:                    true,
		WatchdogSeconds:                     10,
		MaxRetries:                          2,
		Workers:                             4,
		EvalStepLimit:                       1_000_000,
	}
}

var profiles = map[string]func() Options{
	"default": Default,
	// no verification between phases
	"fast": func() Options {
		o := Default()
		o.Profile = "fast"
		o.VerifyGraph = false
		o.VerifyLoopProgress = false
		o.VerifySafepoints = false
		return o
	},
	// every loop transformation that needs trip-count guards
	"aggressive": func() Options {
		o := Default()
		o.Profile = "aggressive"
		o.FullUnroll = true
		o.LoopPeeling = true
		o.PartialUnroll = true
		o.FieldAccessSkipPreciseTypes = true
		return o
	},
	// the smallest pipeline: no guard movement and no floating reads
	"conservative": func() Options {
		o := Default()
		o.Profile = "conservative"
		o.MoveGuardsUpwards = false
		o.OptFloatingReads = false
		return o
	},
}

// Profiles returns the names of the built-in profiles
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Profile returns a built-in profile by name
func Profile(name string) (Options, error) {
	p, ok := profiles[name]
	if !ok {
		return Options{}, fmt.Errorf("unknown options profile %q", name)
	}
	return p(), nil
}

// Parse decodes YAML options. Fields absent from the document keep the values of the
// profile named by its "profile" key, or of the default profile.
func Parse(data []byte) (Options, error) {
	var head struct {
		Profile string `yaml:"profile"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return Options{}, fmt.Errorf("failed to parse options: %w", err)
	}
	base := "default"
	if head.Profile != "" {
		base = head.Profile
	}
	o, err := Profile(base)
	if err != nil {
		return Options{}, err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // reject typos like "moveGuardUpwards"
	if err := decoder.Decode(&o); err != nil {
		return Options{}, fmt.Errorf("failed to parse options: %w", err)
	}
	return o, o.Validate()
}

// Load reads options from a YAML file
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read options file: %w", err)
	}
	o, err := Parse(data)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return o, nil
}

// Validate rejects options no compilation can run with
func (o Options) Validate() error {
	switch {
	case o.CanonicalizerMaxIterations <= 0:
		return fmt.Errorf("canonicalizerMaxIterations must be positive, got %d", o.CanonicalizerMaxIterations)
	case o.ConditionalEliminationMaxIterations <= 0:
		return fmt.Errorf("conditionalEliminationMaxIterations must be positive, got %d", o.ConditionalEliminationMaxIterations)
	case o.MaxRetries < 0:
		return fmt.Errorf("maxRetries must not be negative, got %d", o.MaxRetries)
	case o.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", o.Workers)
	case o.WatchdogSeconds < 0:
		return fmt.Errorf("watchdogSeconds must not be negative, got %d", o.WatchdogSeconds)
	}
	return nil
}

// envBool overrides a flag when the variable is set
func envBool(name string, flag *bool) {
	if env.Has(name) {
		*flag = env.Bool(name)
	}
}

// ApplyEnv overrides options from JITOPT_* environment variables
func (o *Options) ApplyEnv() {
	envBool("JITOPT_MOVE_GUARDS_UPWARDS", &o.MoveGuardsUpwards)
	envBool("JITOPT_FIELD_ACCESS_SKIP_PRECISE_TYPES", &o.FieldAccessSkipPreciseTypes)
	envBool("JITOPT_OPT_FLOATING_READS", &o.OptFloatingReads)
	envBool("JITOPT_FULL_UNROLL", &o.FullUnroll)
	envBool("JITOPT_LOOP_PEELING", &o.LoopPeeling)
	envBool("JITOPT_PARTIAL_UNROLL", &o.PartialUnroll)
	envBool("JITOPT_VERIFY_GRAPH", &o.VerifyGraph)
	envBool("JITOPT_VERIFY_LOOP_PROGRESS", &o.VerifyLoopProgress)
	envBool("JITOPT_VERIFY_SAFEPOINTS", &o.VerifySafepoints)
	o.CanonicalizerMaxIterations = env.Int("JITOPT_CANONICALIZER_MAX_ITERATIONS", o.CanonicalizerMaxIterations)
	o.ConditionalEliminationMaxIterations = env.Int("JITOPT_CE_MAX_ITERATIONS", o.ConditionalEliminationMaxIterations)
	o.WatchdogSeconds = env.Int("JITOPT_WATCHDOG_SECONDS", o.WatchdogSeconds)
	o.MaxRetries = env.Int("JITOPT_MAX_RETRIES", o.MaxRetries)
	o.Workers = env.Int("JITOPT_WORKERS", o.Workers)
	o.EvalStepLimit = env.Int("JITOPT_EVAL_STEP_LIMIT", o.EvalStepLimit)
}

// Resolve builds the options of one run: the named profile or file, then environment
// overrides. An empty path uses the named profile.
func Resolve(profile, path string) (Options, error) {
	var (
		o   Options
		err error
	)
	if path != "" {
		o, err = Load(path)
	} else {
		if profile == "" {
			profile = env.Str("JITOPT_PROFILE", "default")
		}
		o, err = Profile(profile)
	}
	if err != nil {
		return Options{}, err
	}
	o.ApplyEnv()
	return o, o.Validate()
}

// LoopTransformsEnabled reports whether any loop transformation that relies on an exact
// trip count is on
func (o Options) LoopTransformsEnabled() bool {
	return o.FullUnroll || o.LoopPeeling || o.PartialUnroll
}

// Watchdog returns the watchdog interval, or 0 when disabled
func (o Options) Watchdog() time.Duration {
	return time.Duration(o.WatchdogSeconds) * time.Second
}

// Marshal renders the options as YAML
func (o Options) Marshal() ([]byte, error) {
	return yaml.Marshal(o)
}
