package status

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/ffe-procurement/pkg/enums"
)

type transition struct {
	trigger enums.TriggerEvent
	target  enums.ItemStatus
}

// transitionTable is the only place a trigger is bound to a status. Ranks rise with the
// table order.
var transitionTable = []transition{
	{enums.TriggerRFQSent, enums.ItemStatusRFQSent},
	{enums.TriggerQuoteReceived, enums.ItemStatusQuoteReceived},
	{enums.TriggerQuoteAccepted, enums.ItemStatusQuoteApproved},
	{enums.TriggerBudgetSent, enums.ItemStatusBudgetSent},
	{enums.TriggerBudgetApproved, enums.ItemStatusBudgetApproved},
	{enums.TriggerInvoiceSent, enums.ItemStatusInvoiced},
	{enums.TriggerPaymentReceived, enums.ItemStatusPartiallyPaid},
	{enums.TriggerPaymentCompleted, enums.ItemStatusFullyPaid},
	{enums.TriggerOrderPlaced, enums.ItemStatusOrdered},
	{enums.TriggerOrderShipped, enums.ItemStatusShipped},
	{enums.TriggerOrderReceived, enums.ItemStatusReceived},
	{enums.TriggerItemInstalled, enums.ItemStatusInstalled},
	{enums.TriggerItemClosed, enums.ItemStatusClosed},
}

var targets = mustBuildTargets(transitionTable)

func mustBuildTargets(table []transition) map[enums.TriggerEvent]enums.ItemStatus {
	out, err := buildTargets(table)
	if err != nil {
		panic(fmt.Sprintf("invalid status transition table: %v", err))
	}
	return out
}

func buildTargets(table []transition) (map[enums.TriggerEvent]enums.ItemStatus, error) {
	var errs error
	out := make(map[enums.TriggerEvent]enums.ItemStatus, len(table))
	for _, t := range table {
		if !t.trigger.IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("unknown trigger %q", t.trigger))
		}
		if !t.target.IsValid() {
			errs = multierr.Append(errs, fmt.Errorf("trigger %q maps to unknown status %q", t.trigger, t.target))
		}
		if _, dup := out[t.trigger]; dup {
			errs = multierr.Append(errs, fmt.Errorf("trigger %q listed twice", t.trigger))
		}
		out[t.trigger] = t.target
	}
	for _, trigger := range enums.TriggerEvents() {
		if _, ok := out[trigger]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("trigger %q has no target", trigger))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

// TargetFor returns the status a trigger moves an item to.
func TargetFor(trigger enums.TriggerEvent) (enums.ItemStatus, bool) {
	target, ok := targets[trigger]
	return target, ok
}

// TriggerFor returns the trigger bound to a status, the inverse of TargetFor.
func TriggerFor(target enums.ItemStatus) (enums.TriggerEvent, bool) {
	for _, t := range transitionTable {
		if t.target == target {
			return t.trigger, true
		}
	}
	return "", false
}
