package facade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"promosuite.app/internal/deletion"
)

// ErrRemote wraps every non-2xx answer from the deletion endpoint.
var ErrRemote = errors.New("account deletion request failed")

// HTTPDeleter calls POST {base}/v1/account/delete.
type HTTPDeleter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDeleter(baseURL string, client *http.Client) *HTTPDeleter {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPDeleter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type remoteError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

func (d *HTTPDeleter) DeleteAccount(ctx context.Context, userID, credential string) (deletion.Report, error) {
	body, err := json.Marshal(map[string]string{"userId": userID})
	if err != nil {
		return deletion.Report{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/account/delete", bytes.NewReader(body))
	if err != nil {
		return deletion.Report{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := d.client.Do(req)
	if err != nil {
		return deletion.Report{}, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return deletion.Report{}, fmt.Errorf("%w: read body: %v", ErrRemote, err)
	}

	if resp.StatusCode != http.StatusOK {
		var e remoteError
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		if e.Details != "" {
			return deletion.Report{}, fmt.Errorf("%w: %s (%s)", ErrRemote, e.Error, e.Details)
		}
		return deletion.Report{}, fmt.Errorf("%w: %s", ErrRemote, e.Error)
	}

	var out struct {
		Success bool `json:"success"`
		deletion.Report
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return deletion.Report{}, fmt.Errorf("%w: decode report: %v", ErrRemote, err)
	}
	if !out.Success {
		return deletion.Report{}, fmt.Errorf("%w: %s", ErrRemote, out.Message)
	}
	return out.Report, nil
}
