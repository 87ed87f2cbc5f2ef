package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/biscuitwizard/moovcs/internal/vcserr"
	"github.com/biscuitwizard/moovcs/internal/vcstypes"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// HTTPPeer is the default RemotePeer, talking to another replica's RPC
// surface over plain HTTP.
type HTTPPeer struct {
	client *http.Client
	log    *zap.Logger
}

func NewHTTPPeer(log *zap.Logger) *HTTPPeer {
	return &HTTPPeer{client: &http.Client{Timeout: 30 * time.Second}, log: log}
}

// wrapped is the {success, result} RPC envelope; result may be a raw string,
// a JSON-encoded string, or (clone_export) a nested object (spec §6).
type wrapped struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
}

func (p *HTTPPeer) do(ctx context.Context, method, url string, headers map[string]string) ([]byte, error) {
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("remote %s returned %d", url, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("remote %s returned %d: %s", url, resp.StatusCode, string(b)))
		}
		body = b
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, vcserr.Wrap("remote.do", vcserr.Remote, err)
	}
	return body, nil
}

func (p *HTTPPeer) ValidateAPIKey(ctx context.Context, baseURL, apiKey string) (string, error) {
	body, err := p.do(ctx, http.MethodGet, baseURL+"/api/user/stat", map[string]string{"X-API-Key": apiKey})
	if err != nil {
		return "", err
	}
	var stat struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &stat); err != nil || stat.UserID == "" {
		return "", vcserr.New("remote.ValidateAPIKey", vcserr.Remote, "malformed user/stat response")
	}
	return stat.UserID, nil
}

func (p *HTTPPeer) FetchClone(ctx context.Context, url string) (*vcstypes.CloneData, error) {
	body, err := p.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	data, err := unwrapCloneData(body)
	if err != nil {
		return nil, vcserr.Wrap("remote.FetchClone", vcserr.Remote, err)
	}
	return data, nil
}

// unwrapCloneData accepts the three wire shapes spec §4.7 clone_import
// tolerates: wrapped-with-string-result, wrapped-with-object-result, or a
// bare CloneData.
func unwrapCloneData(body []byte) (*vcstypes.CloneData, error) {
	var w wrapped
	if err := json.Unmarshal(body, &w); err == nil && len(w.Result) > 0 {
		var asString string
		if err := json.Unmarshal(w.Result, &asString); err == nil {
			var data vcstypes.CloneData
			if err := json.Unmarshal([]byte(asString), &data); err == nil {
				return &data, nil
			}
		}
		var data vcstypes.CloneData
		if err := json.Unmarshal(w.Result, &data); err == nil {
			return &data, nil
		}
	}
	var bare vcstypes.CloneData
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, err
	}
	return &bare, nil
}

func (p *HTTPPeer) FetchDelta(ctx context.Context, baseURL, sinceChangeID string) (*vcstypes.Delta, error) {
	url := fmt.Sprintf("%s/rpc?operation=index_calc_delta&args=%s", baseURL, sinceChangeID)
	body, err := p.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	var delta vcstypes.Delta
	if err := json.Unmarshal(body, &delta); err != nil {
		return nil, vcserr.Wrap("remote.FetchDelta", vcserr.Remote, err)
	}
	return &delta, nil
}

func (p *HTTPPeer) PostSubmit(ctx context.Context, baseURL string, change *vcstypes.Change) error {
	payload, err := json.Marshal(map[string]any{"operation": "change_submit_remote", "change": change})
	if err != nil {
		return vcserr.Wrap("remote.PostSubmit", vcserr.Remote, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/rpc", bytes.NewReader(payload))
	if err != nil {
		return vcserr.Wrap("remote.PostSubmit", vcserr.Remote, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return vcserr.Wrap("remote.PostSubmit", vcserr.Remote, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return vcserr.New("remote.PostSubmit", vcserr.Remote, fmt.Sprintf("submit rejected: %d", resp.StatusCode))
	}
	return nil
}
