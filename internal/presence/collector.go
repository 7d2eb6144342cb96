package presence

// Collector сводит все источники активности к вызову Clock.Reset().
type Collector struct {
	enabled bool
	sources Sources
	policy  ExclusionPolicy
	clock   *Clock
}

func NewCollector(cfg Config, clock *Clock) *Collector {
	return &Collector{
		enabled: cfg.Enabled,
		sources: cfg.Sources,
		policy:  NewExclusionPolicy(cfg.ExcludedRoutes),
		clock:   clock,
	}
}

// Admit решает, принимать ли сигнал при данном окружении и состоянии. Чистая функция.
// Сигнал принимается только если мониторинг включен, пользователь есть, маршрут не исключен
// и не идет системная проверка.
func (c *Collector) Admit(sig Signal, env Environment, state ActivityState) Outcome {
	switch {
	case !c.enabled:
		return OutcomeDisabled
	case !c.sources.enabled(sig.Kind):
		return OutcomeSourceDisabled
	case !env.UserPresent:
		return OutcomeNoUser
	case c.policy.Excludes(env.Route):
		return OutcomeExcludedRoute
	case env.Verifying:
		return OutcomeVerifying
	}

	// Уход со вкладки активностью не является.
	if sig.Kind == SignalVisibility && !sig.Visible {
		return OutcomeIgnored
	}

	// Пока окно подтверждения открыто, простой снимает только выбор в нем.
	if state.HasFired {
		return OutcomeFired
	}

	return OutcomeAccepted
}

// Observe оценивает сигнал и, если он принят, синхронно сбрасывает часы.
func (c *Collector) Observe(sig Signal, env Environment) Outcome {
	outcome := c.Admit(sig, env, c.clock.State())
	if outcome == OutcomeAccepted {
		c.clock.Reset()
	}
	return outcome
}

// Monitoring сообщает, должен ли трекер вообще считать время в этом окружении.
func (c *Collector) Monitoring(env Environment) bool {
	return c.enabled && env.UserPresent && !c.policy.Excludes(env.Route)
}

func (c *Collector) Excludes(route string) bool {
	return c.policy.Excludes(route)
}
