package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/strand-chat/strand/internal/chat"
	"github.com/strand-chat/strand/internal/client/paging"
	"github.com/strand-chat/strand/internal/common/pagination"
)

// SendFailure distinguishes a structured server rejection from generic
// network trouble so the UI can offer retry or discard accordingly.
type SendFailure struct {
	Reason    string
	Transient bool
}

func (e *SendFailure) Error() string {
	return e.Reason
}

// Client is the HTTP side of the chat client: sends, page fetches, drafts
// and read acknowledgements. Live events arrive via Subscriber.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type SendRequest struct {
	Content   string      `json:"content"`
	ReplyToID *int64      `json:"reply_to_id,omitempty"`
	ThreadID  *uuid.UUID  `json:"thread_id,omitempty"`
	StagedID  string      `json:"staged_id,omitempty"`
	UploadIDs []uuid.UUID `json:"upload_ids,omitempty"`
}

// SendMessage submits a message. A non-2xx response with a body becomes a
// non-transient SendFailure carrying the server's reason; transport errors
// become transient ones.
func (c *Client) SendMessage(ctx context.Context, channelID uuid.UUID, req SendRequest) (*chat.Message, error) {
	var resp struct {
		Message  *chat.Message `json:"message"`
		StagedID string        `json:"staged_id"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), req, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// FetchPage implements paging.Fetcher.
func (c *Client) FetchPage(ctx context.Context, channelID uuid.UUID, req pagination.Request) (*paging.Page, error) {
	q := url.Values{}
	if req.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(req.PageSize))
	}
	if req.TargetMessageID != nil {
		q.Set("target_message_id", strconv.FormatInt(*req.TargetMessageID, 10))
	}
	if req.MessageID != nil {
		q.Set("message_id", strconv.FormatInt(*req.MessageID, 10))
	}
	if req.Direction != "" {
		q.Set("direction", string(req.Direction))
	}

	var resp struct {
		Messages []*chat.Message `json:"messages"`
		Meta     pagination.Meta `json:"meta"`
	}
	path := fmt.Sprintf("/channels/%s/messages?%s", channelID, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &paging.Page{Messages: resp.Messages, Meta: resp.Meta}, nil
}

func (c *Client) SaveDraft(ctx context.Context, channelID uuid.UUID, draft *chat.Draft) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/channels/%s/draft", channelID), draft, nil)
}

func (c *Client) DeleteDraft(ctx context.Context, channelID uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%s/draft", channelID), nil, nil)
}

func (c *Client) MarkRead(ctx context.Context, channelID uuid.UUID, messageID int64) error {
	body := map[string]int64{"message_id": messageID}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%s/read", channelID), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &SendFailure{Reason: "network unreliable", Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		reason := fmt.Sprintf("request failed with status %d", resp.StatusCode)
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			reason = apiErr.Error
			if apiErr.Reason != "" {
				reason = apiErr.Reason
			}
		}
		return &SendFailure{Reason: reason, Transient: resp.StatusCode >= 500}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
