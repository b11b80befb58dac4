package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeRenderPhoto = "photo:render"

type RenderPhotoPayload struct {
	RecordID    string    `json:"record_id"`
	ObjectKey   string    `json:"object_key"`
	FilterID    string    `json:"filter_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewRenderPhotoTask(payload RenderPhotoPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderPhoto, body), nil
}

func ParseRenderPhotoPayload(task *asynq.Task) (RenderPhotoPayload, error) {
	var payload RenderPhotoPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderPhotoPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return payload, nil
}
