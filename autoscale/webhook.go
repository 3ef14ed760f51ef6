package autoscale

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sethgrid/pester"
)

// Webhook is a ready-made Callback that POSTs every scale Action as
// JSON to a configured URL, retrying transient failures with pester's
// bounded backoff. Hosts that don't want to write their own autoscaler
// transport can use this directly as the configured autoscalerCallback.
type Webhook struct {
	URL    string
	Client *pester.Client
}

// NewWebhook returns a Webhook with a pester client configured for a
// small number of bounded retries, suitable for a best-effort
// notification that must never block the scheduling round.
func NewWebhook(url string) *Webhook {
	c := pester.New()
	c.Backoff = pester.ExponentialBackoff
	c.MaxRetries = 3
	c.Timeout = 5 * time.Second
	return &Webhook{URL: url, Client: c}
}

// Callback adapts Post to the autoscale.Callback signature.
func (w *Webhook) Callback(action Action) {
	if err := w.Post(action); err != nil {
		log.WithFields(log.Fields{
			"group":     action.Group,
			"direction": action.Direction.String(),
			"count":     action.Count,
			"err":       err,
		}).Warn("autoscale webhook delivery failed")
	}
}

// Post sends one Action to the configured URL.
func (w *Webhook) Post(action Action) error {
	body, err := json.Marshal(webhookPayload{
		Group:     action.Group,
		Direction: action.Direction.String(),
		Count:     action.Count,
		Reason:    action.Reason,
	})
	if err != nil {
		return err
	}
	resp, err := w.Client.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return &httpStatusError{resp.StatusCode}
	}
	return nil
}

type webhookPayload struct {
	Group     string `json:"group"`
	Direction string `json:"direction"`
	Count     int    `json:"count"`
	Reason    string `json:"reason"`
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return http.StatusText(e.code)
}
