package clarify

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/intake-cli/internal/model"
)

// Benchmark is the expected range for one extracted field, used to attach
// context to clarifications and to auto-resolve low-priority ones.
type Benchmark struct {
	Label string      `yaml:"label"`
	Range model.Range `yaml:"range"`
}

type benchmarkFile struct {
	Benchmarks map[string]Benchmark `yaml:"benchmarks"`
}

// LoadBenchmarks reads a benchmarks YAML file keyed by field path.
// An empty path returns an empty map.
func LoadBenchmarks(path string) (map[string]Benchmark, error) {
	if path == "" {
		return map[string]Benchmark{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "clarify: read benchmarks %s", path)
	}
	var f benchmarkFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "clarify: parse benchmarks %s", path)
	}
	if f.Benchmarks == nil {
		f.Benchmarks = map[string]Benchmark{}
	}
	return f.Benchmarks, nil
}
