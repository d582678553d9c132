package valueobjects

import (
	"fmt"
	"strings"
)

// PositionAction tags why a position changed
type PositionAction string

const (
	ActionBuy    PositionAction = "BUY"
	ActionSell   PositionAction = "SELL"
	ActionUpdate PositionAction = "UPDATE"
)

// ParsePositionAction accepts BUY, SELL or UPDATE in any case; empty means UPDATE
func ParsePositionAction(s string) (PositionAction, error) {
	if strings.TrimSpace(s) == "" {
		return ActionUpdate, nil
	}
	action := PositionAction(strings.ToUpper(strings.TrimSpace(s)))
	if !action.IsValid() {
		return "", fmt.Errorf("invalid position action %q", s)
	}
	return action, nil
}

// IsValid reports whether the action is one of the known tags
func (a PositionAction) IsValid() bool {
	switch a {
	case ActionBuy, ActionSell, ActionUpdate:
		return true
	}
	return false
}

func (a PositionAction) String() string {
	return string(a)
}
