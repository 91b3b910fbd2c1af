package store

// A ValueProvider is a pluggable repository of configuration values that can
// be attached to a configuration store.
//
// Get returns the values the provider holds for path and for every path below
// it. Unlike Store.Get, the returned map is keyed by the full path of each
// value. A provider without values for path returns an empty or nil map.
//
// Watch instructs the provider to monitor path and call updateFunc with a map
// of full paths whenever the monitored values change. The returned function
// cancels the watch. Providers whose values never change may return a no-op.
type ValueProvider interface {
	Get(path string) map[string]string
	Watch(path string, updateFunc func(path string, values map[string]string)) (unsubscribeFunc func())
}
