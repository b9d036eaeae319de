// Package sms sends text messages through Twilio.
package sms

import (
	"context"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

// Client sends SMS from a fixed Twilio number, throttled to a per-second rate.
type Client struct {
	rest       *twilio.RestClient
	fromNumber string
	limiter    *rate.Limiter
}

func NewClient(accountSID, authToken, fromNumber string, ratePerSecond int) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Client{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		fromNumber: fromNumber,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
	}
}

// Send delivers body to an E.164 number.
func (c *Client) Send(ctx context.Context, toNumber, body string) error {
	if !strings.HasPrefix(toNumber, "+") {
		return fmt.Errorf("invalid phone number: %s", toNumber)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms rate limit exceeded: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	if _, err := c.rest.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send SMS to %s: %w", toNumber, err)
	}
	return nil
}
