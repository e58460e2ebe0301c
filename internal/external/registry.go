package external

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"safetyreports/internal/config"
)

// sendGridTimeout bounds a single SendGrid HTTP attempt.
const sendGridTimeout = 30 * time.Second

// NewEmailProvider selects the provider named by cfg.Provider. awsCfg is only
// read for "ses".
func NewEmailProvider(cfg config.EmailConfig, awsCfg aws.Config, logger *slog.Logger) (EmailProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case "ses":
		return NewSESClient(awsCfg, SESClientConfig{
			ConfigSetName: cfg.SESConfigurationSet,
			Logger:        logger,
		}), nil
	case "sendgrid":
		return NewSendGridClient(&http.Client{Timeout: sendGridTimeout}, SendGridClientConfig{
			APIKey:  cfg.SendGridAPIKey.Unmask(),
			BaseURL: cfg.SendGridBaseURL,
			Logger:  logger,
		}), nil
	case "stub":
		return NewStubEmailProvider(logger), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}
