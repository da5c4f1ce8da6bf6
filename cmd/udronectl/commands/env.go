package commands

import "os"

// Environment holds the driver-level configuration the core deliberately
// does not load for itself (see pkg/udrone.go): the local interface to
// bind to. Config loading and CLI parsing are the driver's job, not the
// core's.
type Environment struct {
	Interface string
}

// GetEnvironment reads the one required input, UDRONE_IF, mirroring the
// original udronerc tool's "-i" interface flag.
func GetEnvironment() (*Environment, error) {
	env := &Environment{
		Interface: os.Getenv("UDRONE_IF"),
	}
	if env.Interface == "" {
		return nil, errRequiredEnv("UDRONE_IF")
	}
	return env, nil
}

type envError string

func (e envError) Error() string { return string(e) + " environment variable is required" }

func errRequiredEnv(name string) error { return envError(name) }
