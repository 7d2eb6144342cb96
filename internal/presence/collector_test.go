package presence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestExclusionPolicyMatchesBySegment(t *testing.T) {
	p := NewExclusionPolicy([]string{"/login", "/auth/", " ", "/recover-password"})

	cases := map[string]bool{
		"/login":                  true,
		"/login/sso":              true,
		"/login?next=/companies":  true,
		"/logins":                 false,
		"/auth":                   true,
		"/auth/callback":          true,
		"/companies":              false,
		"/recover-password/token": true,
		"":                        false,
	}
	for route, want := range cases {
		require.Equal(t, want, p.Excludes(route), route)
	}
}

func TestCollectorAdmit(t *testing.T) {
	present := Environment{UserPresent: true, Route: "/companies"}

	tests := []struct {
		name   string
		cfg    func(*Config)
		sig    Signal
		env    Environment
		state  ActivityState
		expect Outcome
	}{
		{name: "input accepted", sig: Signal{Kind: SignalInput}, env: present, expect: OutcomeAccepted},
		{name: "master switch off", cfg: func(c *Config) { c.Enabled = false }, sig: Signal{Kind: SignalInput}, env: present, expect: OutcomeDisabled},
		{name: "source off", cfg: func(c *Config) { c.Sources.Network = false }, sig: Signal{Kind: SignalNetwork}, env: present, expect: OutcomeSourceDisabled},
		{name: "no user", sig: Signal{Kind: SignalInput}, env: Environment{Route: "/companies"}, expect: OutcomeNoUser},
		{name: "excluded route", sig: Signal{Kind: SignalInput}, env: Environment{UserPresent: true, Route: "/login"}, expect: OutcomeExcludedRoute},
		{name: "verification in progress", sig: Signal{Kind: SignalNetwork}, env: Environment{UserPresent: true, Route: "/users", Verifying: true}, expect: OutcomeVerifying},
		{name: "tab hidden", sig: Signal{Kind: SignalVisibility, Visible: false}, env: present, expect: OutcomeIgnored},
		{name: "tab visible", sig: Signal{Kind: SignalVisibility, Visible: true}, env: present, expect: OutcomeAccepted},
		{name: "ambient while fired", sig: Signal{Kind: SignalInput}, env: present, state: ActivityState{HasFired: true}, expect: OutcomeFired},
		{name: "explicit while fired", sig: Signal{Kind: SignalExplicit}, env: present, state: ActivityState{HasFired: true}, expect: OutcomeFired},
		{name: "explicit while active", sig: Signal{Kind: SignalExplicit}, env: present, expect: OutcomeAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			c := NewCollector(cfg, NewClock(clockwork.NewFakeClock(), time.Minute))
			require.Equal(t, tt.expect, c.Admit(tt.sig, tt.env, tt.state))
		})
	}
}

func TestCollectorObserveResetsOnlyWhenAccepted(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testStart)
	clock := NewClock(fc, time.Minute)
	c := NewCollector(DefaultConfig(), clock)

	fc.Advance(30 * time.Second)
	require.Equal(t, OutcomeExcludedRoute, c.Observe(Signal{Kind: SignalInput}, Environment{UserPresent: true, Route: "/login"}))
	require.Equal(t, testStart, clock.State().LastActivityAt)

	require.Equal(t, OutcomeAccepted, c.Observe(Signal{Kind: SignalInput}, Environment{UserPresent: true, Route: "/users"}))
	require.Equal(t, fc.Now(), clock.State().LastActivityAt)
}

func TestParseSignalKind(t *testing.T) {
	for in, want := range map[string]SignalKind{
		"pointer":     SignalInput,
		"Keyboard":    SignalInput,
		"network":     SignalNetwork,
		"visibility":  SignalVisibility,
		"work_status": SignalWorkStatus,
	} {
		got, err := ParseSignalKind(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	for _, in := range []string{"telepathy", "explicit", "reset"} {
		_, err := ParseSignalKind(in)
		require.Error(t, err, in)
	}
}
