package ranking

// Source names used by the built-in retrieval providers.
const (
	SourceStructured = "structured"
	SourceSemantic   = "semantic"
	SourceHybrid     = "hybrid"
)

// SourceConfig is the static tuning record for one retrieval source.
// Weight is the multiplier applied to RRF contributions before fusion.
// Reliability (0..1) is used only in confidence scoring.
type SourceConfig struct {
	Name        string
	Weight      float64
	Reliability float64
}

// DefaultSources returns the built-in source configurations.
//
// The structured source is precise but literal; the semantic source is
// boosted slightly because it recalls conceptual matches that lexical
// search misses.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: SourceStructured, Weight: 1.0, Reliability: 0.95},
		{Name: SourceSemantic, Weight: 1.2, Reliability: 0.85},
		{Name: SourceHybrid, Weight: 1.1, Reliability: 0.90},
	}
}

// sourceOrDefault returns the configuration for a source, falling back
// to weight 1.0 / reliability 1.0 for unknown sources.
func (r *Ranker) sourceOrDefault(name string) SourceConfig {
	if cfg, ok := r.sources[name]; ok {
		return cfg
	}
	return SourceConfig{Name: name, Weight: 1.0, Reliability: 1.0}
}
