// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/parley/pkg/models"
	"github.com/google/uuid"
)

// CreateTestDefinition returns the appointment_scheduler@1.0.0 definition used across
// tests: a required date slot and a SCORING -> SCHEDULED FSM, with overrides applied in order.
func CreateTestDefinition(overrides ...func(*models.WorkDefinition)) *models.WorkDefinition {
	def := &models.WorkDefinition{
		AccountID:   "acc-" + uuid.NewString(),
		TypeID:      "appointment_scheduler",
		Version:     "1.0.0",
		Name:        "Appointment scheduler",
		Description: "Books an appointment",
		Slots: []models.SlotSpec{
			{Path: "date", Type: models.SlotTypeString, Required: true},
		},
		FSM: models.FSM{
			States:  []string{"SCORING", "SCHEDULED", models.StateCancelled},
			Initial: "SCORING",
			Transitions: []models.Transition{
				{From: "SCORING", To: "SCHEDULED"},
				{From: models.WildcardState, To: models.StateCancelled},
			},
		},
		BindingAttribute: "date",
	}

	for _, override := range overrides {
		override(def)
	}

	return def
}

// WithAccount scopes the definition to an account.
func WithAccount(accountID string) func(*models.WorkDefinition) {
	return func(d *models.WorkDefinition) {
		d.AccountID = accountID
	}
}

// WithVersion sets the definition version.
func WithVersion(version string) func(*models.WorkDefinition) {
	return func(d *models.WorkDefinition) {
		d.Version = version
	}
}

// WithSlot appends a slot spec.
func WithSlot(spec models.SlotSpec) func(*models.WorkDefinition) {
	return func(d *models.WorkDefinition) {
		d.Slots = append(d.Slots, spec)
	}
}

// WithPolicies replaces the definition policies.
func WithPolicies(p models.Policies) func(*models.WorkDefinition) {
	return func(d *models.WorkDefinition) {
		d.Policies = p
	}
}
