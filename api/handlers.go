package api

import (
	"context"
	"io"
	"net/http"

	"github.com/camstream/onvif"
	"github.com/camstream/onvif/device"
	"github.com/camstream/onvif/store"
	"github.com/gin-gonic/gin"
	"github.com/juju/errors"
)

const errStreamNotReady = errors.ConstError("no stream URI resolved, create a session first")

type createSessionRequest struct {
	Address  string `json:"address" binding:"required"`
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// CreateSession replaces the current session with a new one and runs the
// discovery sequence on it
func (s *Server) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	sess, notifications, err := s.Connect(c.Request.Context(), req.Address, req.Username, req.Password, req.Remember)

	out := newSessionJSON(sess)
	for _, n := range notifications {
		out.Notifications = append(out.Notifications, newNotificationJSON(n))
	}
	if err != nil {
		status, kind := callStatus(err)
		out.Error = &errorResponse{Kind: kind, Message: err.Error()}
		c.JSON(status, out)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// Connect runs the discovery sequence on a new session, which becomes the
// current one whatever the outcome. With remember set the credentials are
// saved once the device information is retrieved.
func (s *Server) Connect(ctx context.Context, address, username, password string, remember bool) (*device.Session, []device.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := device.NewSession(address, username, password)
	var notifications []device.Notification
	observer := func(n device.Notification) {
		notifications = append(notifications, n)
		if remember && n.Success && n.Kind == onvif.CallGetDeviceInformation {
			s.remember(store.Credentials{IP: address, Username: username, Password: password})
		}
	}

	o := device.NewOrchestrator(
		device.NewDispatcher(s.transport, s.logger),
		device.WithObserver(observer),
		device.WithProfileSelector(s.selector),
		device.WithLogger(s.logger),
	)
	err := o.Run(ctx, sess)
	s.session = sess
	return sess, notifications, err
}

func (s *Server) remember(creds store.Credentials) {
	if s.creds == nil {
		return
	}
	if err := s.creds.Save(creds); err != nil {
		s.logger.Warn().Err(err).Msg("saving credentials")
	}
}

func (s *Server) GetSession(c *gin.Context) {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil {
		abortWithError(c, http.StatusNotFound, "not_found", errors.New("no session"))
		return
	}
	c.JSON(http.StatusOK, newSessionJSON(sess))
}

func (s *Server) GetStream(c *gin.Context) {
	c.JSON(http.StatusOK, newStreamJSON(s.controller.Snapshot()))
}

type playRequest struct {
	URI string `json:"uri"`
}

// Play starts the given URI, or the URI resolved by the current session
func (s *Server) Play(c *gin.Context) {
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, "bad_request", err)
		return
	}

	uri := req.URI
	if uri == "" {
		s.mu.Lock()
		sess := s.session
		s.mu.Unlock()

		var ok bool
		if sess != nil {
			uri, ok = sess.StreamURI()
		}
		if !ok {
			abortWithError(c, http.StatusConflict, "stream_not_ready", errStreamNotReady)
			return
		}
	}

	if err := s.controller.Play(uri); err != nil {
		status, kind := streamStatus(err)
		abortWithError(c, status, kind, err)
		return
	}
	c.JSON(http.StatusAccepted, newStreamJSON(s.controller.Snapshot()))
}

func (s *Server) Stop(c *gin.Context) {
	if err := s.controller.Stop(); err != nil {
		status, kind := streamStatus(err)
		abortWithError(c, status, kind, err)
		return
	}
	c.JSON(http.StatusOK, newStreamJSON(s.controller.Snapshot()))
}

func (s *Server) Capture(c *gin.Context) {
	path, err := s.controller.Capture(c.Request.Context())
	if err != nil {
		status, kind := streamStatus(err)
		abortWithError(c, status, kind, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"path": path})
}

func (s *Server) EnterPictureInPicture(c *gin.Context) {
	if err := s.controller.EnterPictureInPicture(); err != nil {
		status, kind := streamStatus(err)
		abortWithError(c, status, kind, err)
		return
	}
	c.JSON(http.StatusOK, newStreamJSON(s.controller.Snapshot()))
}

func (s *Server) ExitPictureInPicture(c *gin.Context) {
	if err := s.controller.ExitPictureInPicture(); err != nil {
		status, kind := streamStatus(err)
		abortWithError(c, status, kind, err)
		return
	}
	c.JSON(http.StatusOK, newStreamJSON(s.controller.Snapshot()))
}

// GetCredentials returns the last remembered address and username. The
// password is never sent back.
func (s *Server) GetCredentials(c *gin.Context) {
	if s.creds == nil {
		abortWithError(c, http.StatusNotFound, "not_found", errors.New("credentials are not remembered"))
		return
	}

	creds, err := s.creds.Load()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal", err)
		return
	}
	if creds.Empty() {
		abortWithError(c, http.StatusNotFound, "not_found", errors.New("no saved credentials"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ip":           creds.IP,
		"username":     creds.Username,
		"has_password": creds.Password != "",
	})
}
