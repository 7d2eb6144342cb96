package presence

import (
	"fmt"
	"strings"
)

// SignalKind: тип источника активности.
type SignalKind int

const (
	SignalInput      SignalKind = iota + 1 // указатель, клавиатура, скролл, касание
	SignalNetwork                          // исходящий запрос к API
	SignalVisibility                       // смена видимости вкладки
	SignalExplicit                         // явный сброс хостом (Tracker.Reset), из браузера не принимается
	SignalWorkStatus                       // рабочий статус перешел idle -> active
)

func (k SignalKind) String() string {
	switch k {
	case SignalInput:
		return "input"
	case SignalNetwork:
		return "network"
	case SignalVisibility:
		return "visibility"
	case SignalExplicit:
		return "explicit"
	case SignalWorkStatus:
		return "work_status"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseSignalKind разбирает имя источника из API браузера. Явный сброс браузеру недоступен.
func ParseSignalKind(s string) (SignalKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "input", "pointer", "keyboard", "scroll", "touch":
		return SignalInput, nil
	case "network":
		return SignalNetwork, nil
	case "visibility":
		return SignalVisibility, nil
	case "work_status":
		return SignalWorkStatus, nil
	default:
		return 0, fmt.Errorf("presence: unknown signal kind %q", s)
	}
}

// Signal: одно наблюдение активности.
type Signal struct {
	Kind SignalKind
	// Visible имеет смысл только для SignalVisibility: true значит, что вкладка стала видимой.
	Visible bool
}

// Outcome: результат оценки сигнала коллектором.
type Outcome string

const (
	OutcomeAccepted       Outcome = "accepted"
	OutcomeDisabled       Outcome = "monitoring_disabled"
	OutcomeSourceDisabled Outcome = "source_disabled"
	OutcomeNoUser         Outcome = "no_user"
	OutcomeExcludedRoute  Outcome = "excluded_route"
	OutcomeVerifying      Outcome = "verification_in_progress"
	OutcomeFired          Outcome = "awaiting_resolution"
	OutcomeIgnored        Outcome = "ignored"
)
