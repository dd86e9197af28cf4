package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// tests and local sqlite runs. Production schemas come from goose migrations.
func All() []any {
	return []any{
		&InventoryItem{},
		&InventoryMovement{},
		&CalendarEvent{},
		&CalendarLine{},
		&Reservation{},
		&ReservationLine{},
		&AuditEntry{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
