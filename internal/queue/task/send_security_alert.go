package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	SendSecurityAlertTaskName  = "sendSecurityAlertTask"
	SendSecurityAlertQueueName = "sendSecurityAlertQueue"
)

// SendSecurityAlert notifies a user that a session was created on a device
// they had no active session on.
type SendSecurityAlert struct {
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	DeviceName string    `json:"device_name"`
	IP         string    `json:"ip"`
	LoginAt    time.Time `json:"login_at"`
}

func NewSendSecurityAlertTask(email, username, deviceName, ip string, loginAt time.Time) (*asynq.Task, error) {
	data := SendSecurityAlert{
		Email:      email,
		Username:   username,
		DeviceName: deviceName,
		IP:         ip,
		LoginAt:    loginAt,
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("json data marshal failed: %w", err)
	}

	return asynq.NewTask(
		SendSecurityAlertTaskName,
		payload,
		asynq.MaxRetry(5),
		asynq.Queue(SendSecurityAlertQueueName),
	), nil
}
