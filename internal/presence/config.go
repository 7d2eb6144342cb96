package presence

import (
	"strings"
	"time"
)

const (
	DefaultInactivityThreshold = 10 * time.Minute
	DefaultTickInterval        = time.Second

	// MaxReasonLength: предел длины объяснения в символах (не байтах).
	MaxReasonLength = 500
)

// DefaultExcludedRoutes: маршруты аутентификации, где присутствие не считается работой.
var DefaultExcludedRoutes = []string{"/login", "/auth", "/recover-password", "/reset-password"}

// Sources включает/выключает отдельные источники сигналов.
type Sources struct {
	Input      bool `mapstructure:"input"`
	Network    bool `mapstructure:"network"`
	Visibility bool `mapstructure:"visibility"`
	Explicit   bool `mapstructure:"explicit"`
	WorkStatus bool `mapstructure:"work_status"`
}

// AllSources: все источники включены.
func AllSources() Sources {
	return Sources{Input: true, Network: true, Visibility: true, Explicit: true, WorkStatus: true}
}

func (s Sources) enabled(kind SignalKind) bool {
	switch kind {
	case SignalInput:
		return s.Input
	case SignalNetwork:
		return s.Network
	case SignalVisibility:
		return s.Visibility
	case SignalExplicit:
		return s.Explicit
	case SignalWorkStatus:
		return s.WorkStatus
	default:
		return false
	}
}

type WorkStatusConfig struct {
	// BusinessPrefixes: пути удаленного API, которые считаются работой с данными.
	// Пусто: любой изменяющий вызов.
	BusinessPrefixes []string `mapstructure:"business_prefixes"`
}

// Config: настройки трекера (секция presence).
type Config struct {
	Enabled             bool             `mapstructure:"enabled"`
	Debug               bool             `mapstructure:"debug"`
	InactivityThreshold time.Duration    `mapstructure:"inactivity_threshold"`
	TickInterval        time.Duration    `mapstructure:"tick_interval"`
	ExcludedRoutes      []string         `mapstructure:"excluded_routes"`
	Sources             Sources          `mapstructure:"sources"`
	WorkStatus          WorkStatusConfig `mapstructure:"work_status"`
}

// DefaultConfig возвращает конфигурацию по умолчанию (10 минут, тик 1с).
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		InactivityThreshold: DefaultInactivityThreshold,
		TickInterval:        DefaultTickInterval,
		ExcludedRoutes:      append([]string(nil), DefaultExcludedRoutes...),
		Sources:             AllSources(),
	}
}

func (c Config) withDefaults() Config {
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// ExclusionPolicy: маршруты, на которых сигналы игнорируются полностью.
type ExclusionPolicy struct {
	prefixes []string
}

func NewExclusionPolicy(routes []string) ExclusionPolicy {
	p := ExclusionPolicy{}
	for _, r := range routes {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if r != "/" {
			r = strings.TrimSuffix(r, "/")
		}
		p.prefixes = append(p.prefixes, r)
	}
	return p
}

// Excludes сравнивает по сегментам: "/login" исключает "/login" и "/login/sso", но не "/logins".
func (p ExclusionPolicy) Excludes(route string) bool {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	for _, prefix := range p.prefixes {
		if prefix == "/" {
			return true
		}
		if route == prefix || strings.HasPrefix(route, prefix+"/") {
			return true
		}
	}
	return false
}

// Environment: то, что хост знает о текущем моменте. Передается явно в каждую оценку.
type Environment struct {
	UserPresent bool
	Route       string
	Verifying   bool // идет системная проверка: все сигналы игнорируются
}

// EnvironmentFunc отдает актуальное окружение хоста.
type EnvironmentFunc func() Environment
