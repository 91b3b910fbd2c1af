// Package flag provides typed thread-safe flags whose values can be
// dynamically updated by a configuration store.
package flag

import (
	"sync"

	"github.com/achilleasa/katapayadi/config/store"
)

type cfgEventToValueMapper func(map[string]string) (interface{}, error)

type flagImpl struct {
	mutex    sync.RWMutex
	val      interface{}
	hasValue bool

	// Closed when the flag receives its first value.
	hasValueChan chan struct{}

	// Receives a notification when a value replaces a different one.
	changedChan chan struct{}

	// Used to stop the store watcher goroutine.
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}

	valueMapper   cfgEventToValueMapper
	checkEquality func(v1, v2 interface{}) bool
}

func (f *flagImpl) init(s *store.Store, valueMapper cfgEventToValueMapper, cfgPath string) {
	f.valueMapper = valueMapper
	f.changedChan = make(chan struct{}, 1)
	f.hasValueChan = make(chan struct{})
	if f.checkEquality == nil {
		f.checkEquality = func(v1, v2 interface{}) bool { return v1 == v2 }
	}

	if cfgPath == "" {
		return
	}

	if s == nil {
		panic("flag: a store instance is required for watching a configuration path")
	}

	cfgChan, unsubFn := s.Watch(cfgPath)

	// Watch always queues the current configuration; apply it before
	// returning so that a flag is usable as soon as it is created.
	f.apply(<-cfgChan)

	f.stopChan = make(chan struct{})
	f.doneChan = make(chan struct{})
	go func() {
		defer close(f.doneChan)
		defer unsubFn()

		for {
			select {
			case cfg, ok := <-cfgChan:
				if !ok {
					return
				}
				f.apply(cfg)
			case <-f.stopChan:
				return
			}
		}
	}()
}

func (f *flagImpl) apply(cfg map[string]string) {
	val, err := f.valueMapper(cfg)
	if err != nil {
		return
	}
	f.set(val)
}

// get returns the stored value, blocking until the flag has a value.
func (f *flagImpl) get() interface{} {
	<-f.hasValueChan

	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.val
}

// set stores val. A change notification is emitted when val replaces a
// different value; setting the initial value does not emit one.
func (f *flagImpl) set(val interface{}) {
	f.mutex.Lock()
	if f.hasValue && f.checkEquality(f.val, val) {
		f.mutex.Unlock()
		return
	}

	changed := f.hasValue
	f.val = val
	if !f.hasValue {
		f.hasValue = true
		close(f.hasValueChan)
	}
	f.mutex.Unlock()

	if !changed {
		return
	}

	select {
	case f.changedChan <- struct{}{}:
	default:
	}
}

// HasValue returns true if the flag has been assigned a value.
func (f *flagImpl) HasValue() bool {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.hasValue
}

// ChangeChan returns a channel where clients can listen for flag value change
// events. Pending events are coalesced.
func (f *flagImpl) ChangeChan() <-chan struct{} {
	return f.changedChan
}

// CancelDynamicUpdates disables dynamic flag updates from the configuration
// store. It is safe to call it more than once.
func (f *flagImpl) CancelDynamicUpdates() {
	if f.stopChan == nil {
		return
	}

	f.stopOnce.Do(func() { close(f.stopChan) })
	<-f.doneChan
}

// firstMapElement returns the first element in a map. Due to the way that map
// iterators work this method will only return consistent results if the map
// contains a single entry.
func firstMapElement(m map[string]string) (string, bool) {
	for _, v := range m {
		return v, true
	}
	return "", false
}
