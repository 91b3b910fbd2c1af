// Package store implements a thread-safe versioned configuration store.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const pathDelimiter = "/"

// UnsubscribeFunc cancels a change watcher associated with a configuration store.
// After the first call, subsequent calls to UnsubscribeFunc have no effect.
type UnsubscribeFunc func()

type entry struct {
	value   string
	version int
}

type changeWatcher struct {
	id         int
	changeChan chan map[string]string
}

type registeredProvider struct {
	version  int
	provider ValueProvider

	// Paths for which the provider has already been queried, mapped to the
	// function that cancels the provider's own watch.
	watched map[string]func()
}

// Store implements a versioned and thread-safe configuration store. Values
// are strings addressed by "/"-separated paths such as
// "transport/http/port". A path either holds a value or acts as the parent of
// other paths, never both.
//
// Every stored value carries the version of the operation that set it. A set
// operation only replaces a value (or a sub-tree) if its version is greater
// than or equal to the stored one, which allows several configuration
// sources to be layered on top of each other:
//
//	version 0:   {"transport/http/port": ""}     (defaults)
//	version 50:  {"transport/http/port": "8080"} (YAML file)
//	version 100: {"transport/http/port": "9090"} (environment)
//
// The zero value is an empty store ready for use.
type Store struct {
	mutex         sync.Mutex
	entries       map[string]entry
	nextWatcherID int
	watchers      map[string][]changeWatcher
	providers     []*registeredProvider
}

// Reset deletes the store's contents and closes any associated change
// watchers. Registered value providers are retained.
func (s *Store) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, list := range s.watchers {
		for _, w := range list {
			close(w.changeChan)
		}
	}
	for _, p := range s.providers {
		for path, unsubFn := range p.watched {
			unsubFn()
			delete(p.watched, path)
		}
	}

	s.entries = nil
	s.watchers = nil
}

// Get retrieves the configuration sub-tree rooted at path and returns a map
// whose keys are the paths of the values relative to path. If path points to
// a single value, the map contains one entry keyed by the last path segment.
// If path does not exist, Get returns an empty map.
//
// Leading, trailing and repeated delimiters are ignored so "/foo", "foo/" and
// "foo" refer to the same path.
//
// For example, given the values {"key1/key2": "2", "key1/key3/key4": "4"}:
//
//	Get("")               -> {"key1/key2": "2", "key1/key3/key4": "4"}
//	Get("key1")           -> {"key2": "2", "key3/key4": "4"}
//	Get("key1/key3/key4") -> {"key4": "4"}
func (s *Store) Get(path string) map[string]string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.get(normalizePath(path))
}

// SetKey sets the value at path if version is greater than or equal to the
// version of any value it would replace. Setting a value at a path that is
// currently the parent of other values removes them; setting a value below an
// existing value removes that value.
//
// SetKey returns true if the store was modified.
func (s *Store) SetKey(version int, path, value string) (storeUpdated bool, err error) {
	key := normalizePath(path)
	if key == "" {
		return false, fmt.Errorf("cannot set a value at the store root")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var modified []string
	if s.set(version, key, value, &modified) {
		s.notifyWatchers(modified)
		return true, nil
	}
	return false, nil
}

// SetKeys applies a set of values whose keys are relative to path using the
// same version rules as SetKey. The following calls are equivalent:
//
//	SetKeys(1, "key1", map[string]string{"key2": "2", "key3": "3"})
//	SetKeys(1, "", map[string]string{"key1/key2": "2", "key1/key3": "3"})
//
// The value map is rejected if a key is empty or if one key is the parent of
// another, as the outcome would then depend on map iteration order.
//
// SetKeys returns true if any of the supplied values modified the store.
func (s *Store) SetKeys(version int, path string, values map[string]string) (storeUpdated bool, err error) {
	if len(values) == 0 {
		return false, nil
	}

	prefix := normalizePath(path)
	keys := make([]string, 0, len(values))
	normalized := make(map[string]string, len(values))
	for k, v := range values {
		key := normalizePath(k)
		if key == "" {
			return false, fmt.Errorf("supplied value map contains empty path key")
		}
		if prefix != "" {
			key = prefix + pathDelimiter + key
		}
		normalized[key] = v
		keys = append(keys, key)
	}

	sort.Strings(keys)
	for _, key := range keys {
		for i := strings.Index(key, pathDelimiter); i != -1; i = nextDelimiter(key, i) {
			if _, clash := normalized[key[:i]]; clash {
				return false, fmt.Errorf("supplied value map contains both a value and a sub-path for %q", key[:i])
			}
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var modified []string
	for _, key := range keys {
		if s.set(version, key, normalized[key], &modified) {
			storeUpdated = true
		}
	}
	if storeUpdated {
		s.notifyWatchers(modified)
	}
	return storeUpdated, nil
}

// Watch registers a change watcher for the sub-tree rooted at path. It
// returns a channel that receives the result of Get(path) each time the
// sub-tree is modified, together with a function that removes the watcher.
//
// Before Watch registers the watcher it queries every registered value
// provider for path and merges the returned values into the store. The
// current contents of path are then queued to the channel so that a call to
// Watch never blocks and the first read returns the current configuration.
//
// The channel is buffered with a capacity of one. If the watcher has not
// consumed a pending notification it is replaced by the newer one.
func (s *Store) Watch(path string) (<-chan map[string]string, UnsubscribeFunc) {
	path = normalizePath(path)

	s.mutex.Lock()
	providers := append([]*registeredProvider(nil), s.providers...)
	s.mutex.Unlock()

	for _, p := range providers {
		s.queryProvider(p, path)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.watchers == nil {
		s.watchers = make(map[string][]changeWatcher)
	}

	s.nextWatcherID++
	watcher := changeWatcher{
		id:         s.nextWatcherID,
		changeChan: make(chan map[string]string, 1),
	}
	watcher.changeChan <- s.get(path)
	s.watchers[path] = append(s.watchers[path], watcher)

	return watcher.changeChan, s.unwatch(path, watcher.id)
}

// RegisterValueProvider attaches a value provider to the store. Values
// supplied by the provider are merged using the given version. The provider
// is queried for every path that is currently watched and for every path
// watched from now on.
func (s *Store) RegisterValueProvider(version int, provider ValueProvider) {
	p := &registeredProvider{
		version:  version,
		provider: provider,
		watched:  make(map[string]func()),
	}

	s.mutex.Lock()
	s.providers = append(s.providers, p)
	paths := make([]string, 0, len(s.watchers))
	for path := range s.watchers {
		paths = append(paths, path)
	}
	s.mutex.Unlock()

	for _, path := range paths {
		s.queryProvider(p, path)
	}
}

// queryProvider merges the values that p supplies for path and subscribes to
// future updates. It must be called without holding the store mutex.
func (s *Store) queryProvider(p *registeredProvider, path string) {
	s.mutex.Lock()
	_, seen := p.watched[path]
	if !seen {
		p.watched[path] = func() {}
	}
	s.mutex.Unlock()
	if seen {
		return
	}

	apply := func(_ string, values map[string]string) {
		s.SetKeys(p.version, "", values)
	}

	apply(path, p.provider.Get(path))
	unsubFn := p.provider.Watch(path, apply)

	s.mutex.Lock()
	p.watched[path] = unsubFn
	s.mutex.Unlock()
}

// unwatch generates a function that deletes a watcher by its assigned ID.
func (s *Store) unwatch(path string, watcherID int) UnsubscribeFunc {
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		for index, watcher := range s.watchers[path] {
			if watcher.id != watcherID {
				continue
			}

			close(watcher.changeChan)
			s.watchers[path] = append(s.watchers[path][:index], s.watchers[path][index+1:]...)
			if len(s.watchers[path]) == 0 {
				delete(s.watchers, path)
			}
			return
		}
	}
}

// notifyWatchers pushes the current contents of every watched path affected
// by the modified keys. It must be called while holding the store mutex.
func (s *Store) notifyWatchers(modified []string) {
	for path, list := range s.watchers {
		if !affects(path, modified) {
			continue
		}

		for _, watcher := range list {
			// Each watcher receives its own copy of the values.
			values := s.get(path)
			select {
			case <-watcher.changeChan:
			default:
			}
			watcher.changeChan <- values
		}
	}
}

// get returns the sub-tree rooted at the normalized path. It must be called
// while holding the store mutex.
func (s *Store) get(path string) map[string]string {
	values := make(map[string]string)
	if path == "" {
		for k, e := range s.entries {
			values[k] = e.value
		}
		return values
	}

	if e, exists := s.entries[path]; exists {
		values[lastSegment(path)] = e.value
		return values
	}

	prefix := path + pathDelimiter
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			values[k[len(prefix):]] = e.value
		}
	}
	return values
}

// set stores value at key if the version check passes for the key and for
// every value that the assignment would displace. Displaced and updated keys
// are appended to modified. It must be called while holding the store mutex.
func (s *Store) set(version int, key, value string, modified *[]string) bool {
	if s.entries == nil {
		s.entries = make(map[string]entry)
	}

	var displaced []string
	for k, e := range s.entries {
		if k == key || !(isParent(k, key) || isParent(key, k)) {
			continue
		}
		if version < e.version {
			return false
		}
		displaced = append(displaced, k)
	}

	cur, exists := s.entries[key]
	if exists && version < cur.version {
		return false
	}

	s.entries[key] = entry{value: value, version: version}
	for _, k := range displaced {
		delete(s.entries, k)
	}

	if exists && cur.value == value && len(displaced) == 0 {
		return false
	}

	*modified = append(*modified, key)
	*modified = append(*modified, displaced...)
	return true
}

// affects returns true if any of the modified keys lives at, above or below
// the watched path.
func affects(path string, modified []string) bool {
	if path == "" {
		return len(modified) != 0
	}
	for _, k := range modified {
		if k == path || isParent(path, k) || isParent(k, path) {
			return true
		}
	}
	return false
}

// isParent returns true if child is located below parent.
func isParent(parent, child string) bool {
	return len(child) > len(parent) &&
		strings.HasPrefix(child, parent) &&
		child[len(parent)] == '/'
}

func normalizePath(path string) string {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	return strings.Join(segments, pathDelimiter)
}

// nextDelimiter returns the index of the delimiter following the one at
// index from, or -1.
func nextDelimiter(path string, from int) int {
	i := strings.Index(path[from+1:], pathDelimiter)
	if i == -1 {
		return -1
	}
	return from + 1 + i
}

func lastSegment(path string) string {
	return path[strings.LastIndex(path, pathDelimiter)+1:]
}
