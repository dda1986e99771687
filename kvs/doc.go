// Package kvs loads ordered string key/value pairs from layered
// resources: files, classpath-like fs.FS roots, environment variables,
// system properties, command-line tokens, standard input, HTTP URLs, and
// programmatic providers. Loaded key/values may themselves declare
// further resources through reserved `_load_` keys, producing a
// recursive, depth-first expansion with bash-style ${...} interpolation
// applied incrementally so later resources can reference earlier keys.
//
// The output is a flat, ordered list of (key, value, provenance) triples
// meant to seed a higher-level configuration framework; kvs itself has
// no getProperty API, no typed binding, and no reload loop.
//
// Typical use:
//
//	system := kvs.NewSystemBuilder().Build()
//	defer system.Close()
//	result, err := system.Loader().
//		Add("classpath:/start.properties").
//		Add("system:///").
//		Add("env:///").
//		Load(ctx)
package kvs
