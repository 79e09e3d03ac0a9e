package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusNotReady is returned by /-/ready while components are missing.
const statusNotReady = 521

type sessionStatus struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	PeerID   string   `json:"peerId"`
	PeerName string   `json:"peerName"`
	Accounts []string `json:"accounts"`
	ChainID  int64    `json:"chainId"`
}

// InitStatus sets up the status server: probes, metrics and the current session.
func (a *App) InitStatus() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/-/healthy", func(c echo.Context) error {
		return c.String(http.StatusOK, "Healthy.")
	})
	e.GET("/-/ready", func(c echo.Context) error {
		if !a.Ready() {
			return c.String(statusNotReady, "Not ready.")
		}
		return c.String(http.StatusOK, "Ready.")
	})
	e.GET("/-/session", a.getSession)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	a.Echo = e
}

func (a *App) getSession(c echo.Context) error {
	sess := a.Session()
	if sess == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no session")
	}

	accounts := make([]string, len(sess.Accounts))
	for i, account := range sess.Accounts {
		accounts[i] = account.Hex()
	}

	return c.JSON(http.StatusOK, sessionStatus{
		ID:       sess.ID,
		Status:   sess.Status().String(),
		PeerID:   sess.PeerID,
		PeerName: sess.PeerMeta.Name,
		Accounts: accounts,
		ChainID:  sess.ChainID,
	})
}

// StartStatus serves the status endpoints until Shutdown. It is a no-op without a listen address.
func (a *App) StartStatus() error {
	if a.Config.Status.ListenAddress == "" {
		return nil
	}
	if a.Echo == nil {
		a.InitStatus()
	}

	if err := a.Echo.Start(a.Config.Status.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start status server")
	}

	return nil
}
