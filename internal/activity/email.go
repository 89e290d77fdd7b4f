package activity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.temporal.io/sdk/temporal"
)

const sendgridMailEndpoint = "/v3/mail/send"

// Email contains activities that send mail through SendGrid.
type Email struct {
	client *rest.Client
	apiKey string
	host   string
	from   string
}

// NewEmail creates an Email activity struct sending as from. An empty host
// uses the public SendGrid API.
func NewEmail(apiKey, host, from string) *Email {
	return &Email{
		client: &rest.Client{HTTPClient: &http.Client{Timeout: 30 * time.Second}},
		apiKey: apiKey,
		host:   host,
		from:   from,
	}
}

// SendDelistEmailParams holds parameters for the SendDelistEmail activity.
type SendDelistEmailParams struct {
	To        string `json:"to"`
	Username  string `json:"username"`
	ImageName string `json:"image_name"`
}

func delistMessage(from string, params SendDelistEmailParams) *mail.SGMailV3 {
	greeting := "Hi"
	if params.Username != "" {
		greeting = "Hi " + params.Username
	}
	body := fmt.Sprintf("%s,\n\nYour runnable %q has been removed from all of its channels and is no longer listed.\n"+
		"It can still be reached directly and you can tag it again at any time.\n\nThe Runnable team\n",
		greeting, params.ImageName)

	return mail.NewV3MailInit(
		mail.NewEmail("Runnable", from),
		fmt.Sprintf("Your runnable %q was delisted", params.ImageName),
		mail.NewEmail(params.Username, params.To),
		mail.NewContent("text/plain", body),
	)
}

// SendDelistEmail tells an image owner that the image lost all its channel
// tags. Rejections other than rate limiting are not retried.
func (a *Email) SendDelistEmail(ctx context.Context, params SendDelistEmailParams) error {
	if params.To == "" {
		return temporal.NewNonRetryableApplicationError("delist email has no recipient", "NO_RECIPIENT", nil)
	}

	req := sendgrid.GetRequest(a.apiKey, sendgridMailEndpoint, a.host)
	req.Method = rest.Post
	req.Body = mail.GetRequestBody(delistMessage(a.from, params))

	resp, err := a.client.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("sendgrid returned %d: %s", resp.StatusCode, resp.Body),
			"CLIENT_ERROR", nil)
	}
	return fmt.Errorf("sendgrid returned %d", resp.StatusCode)
}
