package types

type CheckResult struct {
	Name   string
	Passed bool
	Weight int
	Detail string
}

type HealthReport struct {
	Checks    []CheckResult
	Score     int
	MaxScore  int
	Threshold int
	Passed    bool
}

func (r HealthReport) Failed() []CheckResult {
	var out []CheckResult
	for _, check := range r.Checks {
		if !check.Passed {
			out = append(out, check)
		}
	}
	return out
}

type ContainerState struct {
	Name    string
	Service string
	State   string
}

func (c ContainerState) Running() bool {
	return c.State == "running"
}
