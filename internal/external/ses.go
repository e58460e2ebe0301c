package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"safetyreports/internal/types"
)

// SESAPI is the subset of the SES v2 client used by SESClient.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESClientConfig configures an SESClient.
type SESClientConfig struct {
	// ConfigSetName is optional.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient sends pre-encoded MIME messages through SES v2. Credentials come
// from the AWS default chain and the SDK retries on its own, so no BaseClient
// is involved.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

// NewSESClient creates an SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

// NewSESClientWithAPI creates an SESClient over api.
func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{api: api, configSetName: cfg.ConfigSetName, logger: logger}
}

// Send submits msg.Raw as a raw message addressed to msg.To. Raw content is
// required because report mail always carries attachments.
func (s *SESClient) Send(ctx context.Context, msg types.EmailMessage) (string, error) {
	if len(msg.Raw) == 0 {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "SES send requires an encoded MIME message", nil)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From.Address),
		Destination:      &sestypes.Destination{ToAddresses: msg.To},
		Content: &sestypes.EmailContent{
			Raw: &sestypes.RawMessage{Data: msg.Raw},
		},
	}
	if s.configSetName != "" {
		in.ConfigurationSetName = aws.String(s.configSetName)
	}
	if msg.ReferenceID != "" {
		in.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("ReferenceID"),
			Value: aws.String(msg.ReferenceID),
		}}
	}

	out, err := s.api.SendEmail(ctx, in)
	if err != nil {
		return "", mapSESError(err)
	}
	id := aws.ToString(out.MessageId)
	s.logger.DebugContext(ctx, "ses message accepted", "message_id", id, "attachments", len(msg.Attachments))
	return id, nil
}

func mapSESError(err error) error {
	var rejected *sestypes.MessageRejected
	if errors.As(err, &rejected) {
		return types.NewAppError(types.ErrCodeEmailBlocked, fmt.Sprintf("SES rejected message: %v", err), err)
	}
	var throttled *sestypes.TooManyRequestsException
	if errors.As(err, &throttled) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SES rate limit exceeded: %v", err), err)
	}
	var paused *sestypes.SendingPausedException
	if errors.As(err, &paused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("SES account sending paused: %v", err), err)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SES error: %v", err), err)
}

var _ EmailProvider = (*SESClient)(nil)
