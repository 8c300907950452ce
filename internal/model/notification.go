package model

import "time"

type NotificationKind string

const (
	NotificationSlotBooked    NotificationKind = "slot_booked"    // Студент запросил слот, ждёт одобрения
	NotificationSlotApproved  NotificationKind = "slot_approved"  // Учитель одобрил запись
	NotificationSlotDeclined  NotificationKind = "slot_declined"  // Учитель отклонил запись
	NotificationSlotCancelled NotificationKind = "slot_cancelled" // Одна из сторон отменила запись
)

type NotificationPayload struct {
	SlotID  string `json:"slot_id"`
	Summary string `json:"summary"`
}

type Notification struct {
	ID          string              `json:"id"`
	RecipientID string              `json:"recipient_id"`
	Kind        NotificationKind    `json:"kind"`
	Payload     NotificationPayload `json:"payload"`
	CreatedAt   time.Time           `json:"created_at"`
	Read        bool                `json:"read"`
}
