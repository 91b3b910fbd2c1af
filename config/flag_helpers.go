package config

import "github.com/achilleasa/katapayadi/config/flag"

// BoolFlag creates a bool flag associated with the global config store. If a
// non-empty config path is specified, the flag will automatically update its value
// when the store value changes.
func BoolFlag(cfgPath string) *flag.Bool {
	return flag.NewBool(&Store, cfgPath)
}

// Int64Flag creates an int64 flag associated with the global config store.
func Int64Flag(cfgPath string) *flag.Int64 {
	return flag.NewInt64(&Store, cfgPath)
}

// Uint32Flag creates a uint32 flag associated with the global config store.
func Uint32Flag(cfgPath string) *flag.Uint32 {
	return flag.NewUint32(&Store, cfgPath)
}

// DurationFlag creates a duration flag associated with the global config store.
func DurationFlag(cfgPath string) *flag.Duration {
	return flag.NewDuration(&Store, cfgPath)
}

// StringFlag creates a string flag associated with the global config store.
func StringFlag(cfgPath string) *flag.String {
	return flag.NewString(&Store, cfgPath)
}

// MapFlag creates a map flag associated with the global config store. The
// flag holds every value stored below cfgPath.
func MapFlag(cfgPath string) *flag.Map {
	return flag.NewMap(&Store, cfgPath)
}
