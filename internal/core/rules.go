package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(LineageIntegrityRule())
	engine.Register(ImmutabilityRule())
	engine.Register(BuildStatusTransitionRule())
	return engine
}
