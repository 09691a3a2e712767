package service

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"HabitPact/internal/model"
)

// writeEvent 在业务事务内写入 outbox，由 relay 异步投递
func (d Deps) writeEvent(tx *gorm.DB, eventType string, aggregateID int64, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	id, err := d.NextID()
	if err != nil {
		return fmt.Errorf("failed to generate outbox id: %w", err)
	}

	now := d.now().UTC()
	event := &model.OutboxEvent{
		BaseModel:   model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
		MessageID:   uuid.NewString(),
		EventType:   eventType,
		Payload:     datatypes.JSON(body),
		AggregateID: aggregateID,
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}
	return nil
}
