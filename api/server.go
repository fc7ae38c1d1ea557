package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/camstream/onvif"
	"github.com/camstream/onvif/device"
	"github.com/camstream/onvif/store"
	"github.com/camstream/onvif/stream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// CredentialStore persists the last address and login that reached a camera
type CredentialStore interface {
	Load() (store.Credentials, error)
	Save(store.Credentials) error
}

// Server exposes the discovery sequence and the stream controller over HTTP.
// Only one discovery sequence runs at a time.
type Server struct {
	transport  device.Transport
	controller *stream.Controller
	creds      CredentialStore
	logger     zerolog.Logger
	selector   device.ProfileSelector

	mu      sync.Mutex
	session *device.Session

	router *gin.Engine
}

// Option configures a Server
type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithProfileSelector changes which profile the stream URI is requested for
func WithProfileSelector(selector device.ProfileSelector) Option {
	return func(s *Server) { s.selector = selector }
}

// NewServer wires the routes. creds may be nil, in which case nothing is
// remembered.
func NewServer(transport device.Transport, controller *stream.Controller, creds CredentialStore, opts ...Option) *Server {
	s := &Server{
		transport:  transport,
		controller: controller,
		creds:      creds,
		logger:     zerolog.Nop(),
		selector:   device.FirstProfile,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes(s.router)
	return s
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.POST("/session", s.CreateSession)
	router.GET("/session", s.GetSession)

	st := router.Group("/stream")
	{
		st.GET("", s.GetStream)
		st.POST("/play", s.Play)
		st.POST("/stop", s.Stop)
		st.POST("/capture", s.Capture)
		st.POST("/pip", s.EnterPictureInPicture)
		st.DELETE("/pip", s.ExitPictureInPicture)
	}

	router.GET("/credentials", s.GetCredentials)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, kind string, err error) {
	c.AbortWithStatusJSON(status, errorResponse{Kind: kind, Message: err.Error()})
}

type profileJSON struct {
	Token      string `json:"token"`
	Name       string `json:"name"`
	Encoding   string `json:"encoding,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Framerate  int    `json:"framerate,omitempty"`
}

type deviceJSON struct {
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	SerialNumber    string `json:"serial_number"`
	HardwareID      string `json:"hardware_id"`
}

type notificationJSON struct {
	Call    string `json:"call"`
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
	State   string `json:"state"`
}

type sessionJSON struct {
	Address       string             `json:"address"`
	Username      string             `json:"username"`
	State         string             `json:"state"`
	StreamReady   bool               `json:"stream_ready"`
	StreamURI     string             `json:"stream_uri,omitempty"`
	Device        *deviceJSON        `json:"device,omitempty"`
	Profiles      []profileJSON      `json:"profiles"`
	Notifications []notificationJSON `json:"notifications,omitempty"`
	Error         *errorResponse     `json:"error,omitempty"`
}

func newSessionJSON(sess *device.Session) sessionJSON {
	out := sessionJSON{
		Address:     sess.Address(),
		Username:    sess.Username(),
		State:       sess.State().String(),
		StreamReady: sess.IsStreamReady(),
		Profiles:    []profileJSON{},
	}
	if uri, ok := sess.StreamURI(); ok {
		out.StreamURI = uri
	}
	if info := sess.DeviceInformation(); info != nil {
		out.Device = &deviceJSON{
			Manufacturer:    info.Manufacturer,
			Model:           info.Model,
			FirmwareVersion: info.FirmwareVersion,
			SerialNumber:    info.SerialNumber,
			HardwareID:      info.HardwareId,
		}
	}
	for _, p := range sess.Profiles() {
		pj := profileJSON{Token: p.Token, Name: p.Name, Encoding: p.Encoding, Framerate: p.Framerate}
		if p.Width > 0 && p.Height > 0 {
			pj.Resolution = p.Resolution()
		}
		out.Profiles = append(out.Profiles, pj)
	}
	return out
}

func newNotificationJSON(n device.Notification) notificationJSON {
	out := notificationJSON{
		Call:    n.Kind.String(),
		Success: n.Success,
		Summary: n.Summary,
		State:   n.State.String(),
	}
	if n.Err != nil {
		out.Error = n.Err.Error()
	}
	return out
}

type streamJSON struct {
	State          string `json:"state"`
	URI            string `json:"uri,omitempty"`
	Visibility     string `json:"visibility"`
	Capturing      bool   `json:"capturing"`
	CaptureEnabled bool   `json:"capture_enabled"`
}

func newStreamJSON(st stream.Status) streamJSON {
	return streamJSON{
		State:          st.State.String(),
		URI:            st.URI,
		Visibility:     st.Visibility.String(),
		Capturing:      st.Capturing,
		CaptureEnabled: st.CaptureEnabled,
	}
}

// callStatus maps a discovery failure to an HTTP status
func callStatus(err error) (int, string) {
	kind, ok := onvif.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal"
	}
	if kind == onvif.ErrAuthenticationFailure {
		return http.StatusUnauthorized, string(kind)
	}
	return http.StatusBadGateway, string(kind)
}

// streamStatus maps a controller failure to an HTTP status
func streamStatus(err error) (int, string) {
	kind, ok := stream.KindOf(err)
	if !ok {
		if err == stream.ErrClosed {
			return http.StatusServiceUnavailable, string(stream.ErrClosed)
		}
		return http.StatusInternalServerError, "internal"
	}
	switch kind {
	case stream.ErrAlreadyActive:
		return http.StatusConflict, string(kind)
	case stream.ErrPictureInPictureUnsupported:
		return http.StatusNotImplemented, string(kind)
	case stream.ErrCaptureError:
		return http.StatusConflict, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}
