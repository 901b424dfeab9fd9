package stage

// Health reports whether a stage's external tooling is usable, checked at
// daemon startup and exposed through the status API.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy marks a stage ready.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy marks a stage unusable, with detail naming what is missing.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
