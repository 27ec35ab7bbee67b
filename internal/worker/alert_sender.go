package worker

import (
	"context"
	"time"

	"github.com/communa/backend/internal/config"
	emailProvider "github.com/communa/backend/pkg/email"

	"github.com/pkg/errors"
)

type alertSender struct {
	sender emailProvider.Sender
	config config.EmailConfig
}

func newAlertSender(
	sender emailProvider.Sender,
	config config.EmailConfig,
) *alertSender {
	return &alertSender{
		sender: sender,
		config: config,
	}
}

type newDeviceAlertInput struct {
	Username   string
	DeviceName string
	IP         string
	LoginAt    string
}

func (s *alertSender) SendNewDeviceAlert(ctx context.Context, email, username, deviceName, ip string, loginAt time.Time) error {
	subject := "New sign-in to your account"

	templateInput := newDeviceAlertInput{
		Username:   username,
		DeviceName: deviceName,
		IP:         ip,
		LoginAt:    loginAt.Format(time.RFC1123),
	}
	sendInput := emailProvider.SendEmailInput{Subject: subject, To: email}

	if err := sendInput.GenerateBodyFromHTML(s.config.Templates.NewDeviceAlert, templateInput); err != nil {
		return errors.Wrap(err, "generate alert email")
	}

	if err := s.sender.Send(sendInput); err != nil {
		return errors.Wrap(err, "send alert email")
	}

	return nil
}
