package transfer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marianozunino/transferhelper/internal/transfer/transfertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://example.com", time.Minute, nil)
	assert.Equal(t, "http://example.com/", client.BaseURL)

	client = NewClient("http://example.com/", time.Minute, nil)
	assert.Equal(t, "http://example.com/", client.BaseURL)
}

func TestClientUpload(t *testing.T) {
	server := transfertest.NewServer()
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	content := "Hello, World!"

	result, err := client.Upload(context.Background(), UploadRequest{
		Name:        "test.txt",
		Body:        strings.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "text/plain; charset=utf-8",
	})
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/tok1/test.txt", result.Link)
	assert.Equal(t, server.URL+"/tok1/test.txt/del1", result.DeleteCredential)

	obj, ok := server.Object(result.Link)
	require.True(t, ok)
	assert.Equal(t, content, string(obj.Data))
	assert.Equal(t, "text/plain; charset=utf-8", obj.ContentType)
}

func TestClientUploadSendsContentLength(t *testing.T) {
	var gotLength int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/report.pdf", r.URL.Path)
		gotLength = r.ContentLength
		io.Copy(io.Discard, r.Body)

		w.Header().Set("X-Url-Delete", "https://x/abc/report.pdf/DEL123")
		w.Write([]byte("https://x/abc\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	body := strings.Repeat("a", 4096)

	result, err := client.Upload(context.Background(), UploadRequest{
		Name: "report.pdf",
		Body: io.MultiReader(strings.NewReader(body)),
		Size: int64(len(body)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4096), gotLength)
	assert.Equal(t, "https://x/abc", result.Link)
	assert.Equal(t, "https://x/abc/report.pdf/DEL123", result.DeleteCredential)
}

func TestClientUploadReportsProgress(t *testing.T) {
	server := transfertest.NewServer()
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	body := strings.Repeat("b", 100_000)

	var fractions []float64
	_, err := client.Upload(context.Background(), UploadRequest{
		Name:     "big.bin",
		Body:     strings.NewReader(body),
		Size:     int64(len(body)),
		Progress: func(f float64) { fractions = append(fractions, f) },
	})
	require.NoError(t, err)

	require.NotEmpty(t, fractions)
	assert.Equal(t, 1.0, fractions[len(fractions)-1])
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1])
	}
}

func TestClientUploadServerError(t *testing.T) {
	server := transfertest.NewServer()
	defer server.Close()
	server.FailUploads(http.StatusRequestEntityTooLarge)

	client := NewClient(server.URL, time.Minute, nil)
	_, err := client.Upload(context.Background(), UploadRequest{
		Name: "huge.bin",
		Body: strings.NewReader("data"),
		Size: 4,
	})
	require.Error(t, err)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "upload", remoteErr.Op)
	assert.Equal(t, http.StatusRequestEntityTooLarge, remoteErr.StatusCode)
	assert.Equal(t, 0, server.Objects())
}

func TestClientUploadMissingDeleteHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("https://x/abc\n"))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	_, err := client.Upload(context.Background(), UploadRequest{Name: "a.txt", Body: strings.NewReader("a"), Size: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no delete link found")
}

func TestClientUploadUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1/", time.Second, nil)
	_, err := client.Upload(context.Background(), UploadRequest{Name: "a.txt", Body: strings.NewReader("a"), Size: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upload file")
}

func TestClientUploadRequiresName(t *testing.T) {
	client := NewClient("http://example.com/", time.Second, nil)
	_, err := client.Upload(context.Background(), UploadRequest{Body: strings.NewReader("a"), Size: 1})
	assert.Error(t, err)
}

func TestClientDelete(t *testing.T) {
	server := transfertest.NewServer()
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	result, err := client.Upload(context.Background(), UploadRequest{Name: "a.txt", Body: strings.NewReader("a"), Size: 1})
	require.NoError(t, err)

	outcome, err := client.Delete(context.Background(), result.DeleteCredential)
	require.NoError(t, err)
	assert.Equal(t, Removed, outcome)
	assert.Equal(t, 0, server.Objects())

	outcome, err = client.Delete(context.Background(), result.DeleteCredential)
	require.NoError(t, err)
	assert.Equal(t, AlreadyGone, outcome)
}

func TestClientDeleteServerError(t *testing.T) {
	server := transfertest.NewServer()
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	result, err := client.Upload(context.Background(), UploadRequest{Name: "a.txt", Body: strings.NewReader("a"), Size: 1})
	require.NoError(t, err)

	server.FailDeletes(http.StatusInternalServerError)
	_, err = client.Delete(context.Background(), result.DeleteCredential)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "delete", remoteErr.Op)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
	assert.Equal(t, 1, server.Objects())
}

func TestClientDeleteGone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	outcome, err := client.Delete(context.Background(), server.URL+"/abc/a.txt/del")
	require.NoError(t, err)
	assert.Equal(t, AlreadyGone, outcome)
}

func TestClientDeleteUnreachableHidesCredential(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	credential := server.URL + "/abc/a.txt/SUPERSECRETTOKEN"
	server.Close()

	client := NewClient(credential, time.Minute, nil)
	_, err := client.Delete(context.Background(), credential)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, "delete", remoteErr.Op)
	assert.NotContains(t, err.Error(), "SUPERSECRETTOKEN")
	assert.NotContains(t, err.Error(), credential)
}

func TestClientDeleteErrorBodyHidesCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "cannot delete http://"+r.Host+r.URL.Path)
	}))
	defer server.Close()

	credential := server.URL + "/abc/a.txt/SUPERSECRETTOKEN"
	client := NewClient(server.URL, time.Minute, nil)
	_, err := client.Delete(context.Background(), credential)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "cannot delete")
	assert.NotContains(t, err.Error(), "SUPERSECRETTOKEN")
}

func TestClientExists(t *testing.T) {
	server := transfertest.NewServer()
	defer server.Close()

	client := NewClient(server.URL, time.Minute, nil)
	result, err := client.Upload(context.Background(), UploadRequest{Name: "a.txt", Body: strings.NewReader("a"), Size: 1})
	require.NoError(t, err)

	exists, err := client.Exists(context.Background(), result.Link)
	require.NoError(t, err)
	assert.True(t, exists)

	server.Expire(result.Link)
	exists, err = client.Exists(context.Background(), result.Link)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteOutcomeString(t *testing.T) {
	assert.Equal(t, "removed", Removed.String())
	assert.Equal(t, "already gone", AlreadyGone.String())
	assert.Equal(t, "unknown", DeleteOutcome(0).String())
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteError{Op: "delete", StatusCode: 500, Body: "boom"}
	assert.Equal(t, "delete failed with status 500: boom", err.Error())

	err = &RemoteError{Op: "upload", Body: "no link"}
	assert.Equal(t, "upload failed: no link", err.Error())
}
