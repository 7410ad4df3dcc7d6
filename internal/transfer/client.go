package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/marianozunino/transferhelper/internal/model"
	"go.uber.org/zap"
)

// DeleteCredentialHeader carries the delete URL in an upload response
const DeleteCredentialHeader = "X-Url-Delete"

// DeleteOutcome is the result of a successful remote delete call
type DeleteOutcome int

const (
	// Removed means the service deleted the object
	Removed DeleteOutcome = iota + 1
	// AlreadyGone means the object had already expired or been deleted
	AlreadyGone
)

func (o DeleteOutcome) String() string {
	switch o {
	case Removed:
		return "removed"
	case AlreadyGone:
		return "already gone"
	default:
		return "unknown"
	}
}

// RemoteError is a call the transfer service answered with a failure
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
}

// UploadRequest describes one streamed upload
type UploadRequest struct {
	Name        string
	Body        io.Reader
	Size        int64
	ContentType string
	Progress    ProgressFunc
}

// UploadResult is what the service hands back for a stored object
type UploadResult struct {
	Link             string
	DeleteCredential string
}

type contentLengthKey struct{}

type Client struct {
	BaseURL string
	http    *resty.Client
}

// NewClient creates a client for a transfer.sh compatible service
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "transferhelper/1.0").
		SetLogger(log.Sugar())

	// Streamed bodies are sent with a known length instead of chunked.
	client.SetPreRequestHook(func(_ *resty.Client, req *http.Request) error {
		if size, ok := req.Context().Value(contentLengthKey{}).(int64); ok && size > 0 {
			req.ContentLength = size
		}
		return nil
	})

	return &Client{
		BaseURL: baseURL,
		http:    client,
	}
}

// Upload streams req.Body to the service and returns the public link and the
// delete credential
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("upload name must not be empty")
	}

	body := req.Body
	if req.Progress != nil {
		body = newProgressReader(body, req.Size, req.Progress)
	}

	r := c.http.R().
		SetContext(context.WithValue(ctx, contentLengthKey{}, req.Size)).
		SetBody(body)
	if req.ContentType != "" {
		r.SetHeader("Content-Type", req.ContentType)
	}

	resp, err := r.Put(c.BaseURL + url.PathEscape(req.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, &RemoteError{Op: "upload", StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}

	link := strings.TrimSpace(resp.String())
	credential := resp.Header().Get(DeleteCredentialHeader)
	if link == "" {
		return nil, &RemoteError{Op: "upload", StatusCode: resp.StatusCode(), Body: "response carried no link"}
	}
	if credential == "" {
		return nil, &RemoteError{Op: "upload", StatusCode: resp.StatusCode(), Body: "no delete link found"}
	}

	return &UploadResult{
		Link:             link,
		DeleteCredential: credential,
	}, nil
}

// Delete revokes an object using its delete credential
func (c *Client) Delete(ctx context.Context, credential string) (DeleteOutcome, error) {
	if credential == "" {
		return 0, fmt.Errorf("delete credential must not be empty")
	}

	// The credential is the request URL, so neither the transport error nor
	// the response body may carry it out of here unmasked.
	resp, err := c.http.R().SetContext(ctx).Delete(credential)
	if err != nil {
		msg := err.Error()
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			msg = urlErr.Err.Error()
		}
		return 0, &RemoteError{Op: "delete", Body: maskCredential(msg, credential)}
	}

	switch {
	case resp.IsSuccess():
		return Removed, nil
	case isGone(resp.StatusCode()):
		return AlreadyGone, nil
	default:
		body := maskCredential(strings.TrimSpace(resp.String()), credential)
		return 0, &RemoteError{Op: "delete", StatusCode: resp.StatusCode(), Body: body}
	}
}

func maskCredential(text, credential string) string {
	return strings.ReplaceAll(text, credential, model.MaskCredential(credential))
}

// Exists asks the service whether link is still served
func (c *Client) Exists(ctx context.Context, link string) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Head(link)
	if err != nil {
		return false, fmt.Errorf("failed to check link: %w", err)
	}

	switch {
	case resp.IsSuccess():
		return true, nil
	case isGone(resp.StatusCode()):
		return false, nil
	default:
		return false, &RemoteError{Op: "check", StatusCode: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
	}
}

func isGone(status int) bool {
	return status == http.StatusNotFound || status == http.StatusGone
}
