// Package boot is a convenience layer that loads an opinionated resource
// chain and hands the result to a configuration framework. It is the
// one place this library takes a position on which sources load first:
//
//  1. system properties, as variables only
//  2. environment variables, as variables only
//  3. classpath:/application.properties (optional)
//  4. profile.classpath:/application-__PROFILE__.properties (optional,
//     only when profiles are active)
//
// Later sources win when the flat result is collapsed to a map. The
// loaded key-values can seed a viper.Viper for applications already
// built on that ecosystem.
package boot

import (
	"context"
	"strings"

	"github.com/spf13/viper"

	"github.com/vk/ezkv/internal/ctxlog"
	"github.com/vk/ezkv/kvs"
)

// Options configures a boot load. The zero value loads from the process
// environment with no profiles.
type Options struct {
	// Environment overrides the process environment; nil uses defaults.
	Environment kvs.Environment
	// Profiles activates profile expansion: they become the profile
	// parameter of the profile.classpath resource. Empty falls back to the
	// EZKV_PROFILE environment variable (CSV). The onprofile filter is
	// registered but runs only on resources that declare it, and it reads
	// the active profiles from that resource's own profile parameter, not
	// from this field.
	Profiles []string
	// Modules are additional media or filter modules to register.
	Modules []kvs.Module
	// ExtraURIs load after the standard chain, in order.
	ExtraURIs []string
}

// Config is the result of a boot load.
type Config struct {
	result   kvs.KeyValues
	profiles []string
}

// Load runs the standard chain and returns the loaded configuration.
func Load(ctx context.Context, opts Options) (*Config, error) {
	env := opts.Environment
	if env == nil {
		env = &kvs.DefaultEnvironment{}
	}
	profiles := opts.Profiles
	if len(profiles) == 0 {
		if csv, ok := env.Env()["EZKV_PROFILE"]; ok {
			profiles = splitCSV(csv)
		}
	}
	ctxlog.FromContext(ctx).Debug("Booting configuration.", "profiles", profiles)
	builder := kvs.NewSystemBuilder().
		Environment(env).
		Filter(OnProfileFilter())
	builder.Use(opts.Modules...)
	system := builder.Build()
	defer system.Close()

	sys := kvs.MustResource("system", "system:///")
	sys.Flags |= kvs.LoadFlagNoAdd
	envRes := kvs.MustResource("env", "env:///")
	envRes.Flags |= kvs.LoadFlagNoAdd
	app := kvs.MustResource("application", "classpath:/application.properties")
	app.Flags |= kvs.LoadFlagNoRequire

	loader := system.Loader().
		AddResource(sys).
		AddResource(envRes).
		AddResource(app)
	if len(profiles) > 0 {
		profiled := kvs.MustResource("applicationProfiles", "profile.classpath:/application-__PROFILE__.properties")
		profiled.Flags |= kvs.LoadFlagNoRequire | kvs.LoadFlagPropagate
		profiled.Parameters.Set("profile", strings.Join(profiles, ","))
		loader.AddResource(profiled)
	}
	for _, uri := range opts.ExtraURIs {
		loader.Add(uri)
	}
	result, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Config{result: result, profiles: profiles}, nil
}

// KeyValues returns the full ordered result.
func (c *Config) KeyValues() kvs.KeyValues {
	return c.result
}

// Profiles returns the active profiles.
func (c *Config) Profiles() []string {
	return c.profiles
}

// ToMap collapses the result; for duplicate keys the last loaded wins.
func (c *Config) ToMap() map[string]string {
	return c.result.ToMap()
}

// Viper seeds a fresh viper.Viper with the loaded values, in load order
// so later entries override earlier ones under viper's own semantics.
func (c *Config) Viper() *viper.Viper {
	v := viper.New()
	for kv := range c.result.All() {
		v.Set(kv.Key, kv.Expanded)
	}
	return v
}

func splitCSV(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
