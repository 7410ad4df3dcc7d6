// Package transfertest provides an in-process transfer.sh lookalike for tests.
package transfertest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/labstack/echo/v4"
)

// Object is an upload held by the fake server
type Object struct {
	Name        string
	Token       string
	DeleteToken string
	ContentType string
	Data        []byte
}

// Server emulates the PUT/DELETE/HEAD surface of transfer.sh. Failures can
// be injected per operation by setting a non-zero status.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	objects      map[string]*Object // keyed by token/name
	next         int
	uploadStatus int
	deleteStatus int
	deletes      int
}

func NewServer() *Server {
	s := &Server{objects: make(map[string]*Object)}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.PUT("/:name", s.handleUpload)
	e.DELETE("/:token/:name/:deleteToken", s.handleDelete)
	e.HEAD("/:token/:name", s.handleHead)
	e.GET("/:token/:name", s.handleGet)

	s.Server = httptest.NewServer(e)
	return s
}

// FailUploads makes every upload answer with status; 0 restores success
func (s *Server) FailUploads(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadStatus = status
}

// FailDeletes makes every delete answer with status; 0 restores success
func (s *Server) FailDeletes(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteStatus = status
}

// Objects returns the number of stored objects
func (s *Server) Objects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// DeleteCalls returns how many delete requests reached the server
func (s *Server) DeleteCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

// Object looks up a stored object by its public link
func (s *Server) Object(link string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, obj := range s.objects {
		if s.link(obj) == link {
			return obj, true
		}
	}
	return nil, false
}

// Expire drops an object as if its retention window had passed
func (s *Server) Expire(link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, obj := range s.objects {
		if s.link(obj) == link {
			delete(s.objects, key)
		}
	}
}

func (s *Server) link(obj *Object) string {
	return fmt.Sprintf("%s/%s/%s", s.URL, obj.Token, obj.Name)
}

func (s *Server) handleUpload(c echo.Context) error {
	s.mu.Lock()
	status := s.uploadStatus
	s.mu.Unlock()

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.String(http.StatusBadRequest, "could not read body")
	}
	if status != 0 {
		return c.String(status, http.StatusText(status))
	}

	s.mu.Lock()
	s.next++
	obj := &Object{
		Name:        c.Param("name"),
		Token:       fmt.Sprintf("tok%d", s.next),
		DeleteToken: fmt.Sprintf("del%d", s.next),
		ContentType: c.Request().Header.Get("Content-Type"),
		Data:        data,
	}
	s.objects[obj.Token+"/"+obj.Name] = obj
	link := s.link(obj)
	s.mu.Unlock()

	c.Response().Header().Set("X-Url-Delete", fmt.Sprintf("%s/%s", link, obj.DeleteToken))
	return c.String(http.StatusOK, link+"\n")
}

func (s *Server) handleDelete(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++

	if s.deleteStatus != 0 {
		return c.String(s.deleteStatus, http.StatusText(s.deleteStatus))
	}

	key := c.Param("token") + "/" + c.Param("name")
	obj, ok := s.objects[key]
	if !ok {
		return c.String(http.StatusNotFound, "Not Found")
	}
	if obj.DeleteToken != c.Param("deleteToken") {
		return c.String(http.StatusNotFound, "Not Found")
	}
	delete(s.objects, key)
	return c.String(http.StatusOK, "Deleted")
}

func (s *Server) handleHead(c echo.Context) error {
	if _, ok := s.lookup(c); !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleGet(c echo.Context) error {
	obj, ok := s.lookup(c)
	if !ok {
		return c.String(http.StatusNotFound, "Not Found")
	}
	return c.Blob(http.StatusOK, obj.ContentType, obj.Data)
}

func (s *Server) lookup(c echo.Context) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[c.Param("token")+"/"+c.Param("name")]
	return obj, ok
}
