package pipeline

type Step struct {
	Step           string `yaml:"step"`
	Script         string `yaml:"script"`
	TimeoutSeconds int64  `yaml:"timeout_seconds"`
}

type Stage struct {
	Stage     string `yaml:"stage"`
	Steps     []Step `yaml:"steps"`
	Artifacts string `yaml:"artifacts"`
}

// Script is a declarative pipeline document: an ordered list of stages, each
// with ordered steps, plus optional post steps that run after every run no
// matter how the stages resolved.
type Script struct {
	Stages []Stage `yaml:"stages"`
	Post   []Step  `yaml:"post"`
}
