package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

func NewAccountRefresh(address string) (*asynq.Task, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	payload, err := json.Marshal(AccountRefreshPayload{Address: address})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAccountRefresh, payload), nil
}
