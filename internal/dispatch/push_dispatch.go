package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FCMPusher posts JSON to an FCM HTTPv1-style endpoint using a server key.
// Delivery is best-effort: failures are reported to the caller for logging
// and never retried.
type FCMPusher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewFCMPusher(endpoint, key string) *FCMPusher {
	return &FCMPusher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (f *FCMPusher) Push(token, event string, payload any) error {
	body := map[string]any{
		"message": map[string]any{
			"token": token,
			"data":  map[string]any{"event": event, "payload": payload},
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
