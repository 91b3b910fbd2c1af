// Package provider defines the configuration value providers that can be
// attached to a store.Store.
package provider

import (
	"os"
	"regexp"
	"strings"
)

var (
	invalidCharRegex = regexp.MustCompile(`[\s\-/]+`)

	// Hook for tests.
	environ = os.Environ
)

// EnvVars implements a configuration provider that fetches configuration values
// from the environment variables associated with the currently running process.
type EnvVars struct{}

// NewEnvVars creates a new EnvVars provider instance.
func NewEnvVars() *EnvVars {
	return &EnvVars{}
}

// Get returns the configuration values for path and the paths below it.
//
// The path is converted to the conventional envvar form by uppercasing it and
// replacing path delimiters with underscores. Every envvar whose name equals
// the converted path or starts with it followed by an underscore is returned.
// The map keys are obtained by lowercasing the envvar names and replacing
// underscores with the path delimiter.
//
// For example, with the envvars:
//
//	TRANSPORT_HTTP_PORT=8080
//	TRANSPORT_HTTP_CLIENT_HOSTSUFFIX=.svc.cluster.local
//
// Get("transport/http") returns:
//
//	{
//	 "transport/http/port": "8080",
//	 "transport/http/client/hostsuffix": ".svc.cluster.local",
//	}
//
// The root path never matches so that the whole environment is not imported.
func (p *EnvVars) Get(path string) map[string]string {
	cfg := make(map[string]string)

	prefix := strings.Trim(strings.ToUpper(invalidCharRegex.ReplaceAllString(path, "_")), "_")
	if prefix == "" {
		return cfg
	}

	for _, envvar := range environ() {
		tokens := strings.SplitN(envvar, "=", 2)
		if len(tokens) != 2 {
			continue
		}
		if tokens[0] != prefix && !strings.HasPrefix(tokens[0], prefix+"_") {
			continue
		}

		cfg[strings.Replace(strings.ToLower(tokens[0]), "_", "/", -1)] = tokens[1]
	}

	return cfg
}

// Watch is a no-op as the process environment is assumed to never change.
func (p *EnvVars) Watch(path string, valueSetter func(string, map[string]string)) func() {
	return func() {}
}
