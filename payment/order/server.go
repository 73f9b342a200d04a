package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-cryptopay/payment/config"
	"go-cryptopay/payment/db"
	"go-cryptopay/payment/middleware"
)

type payHandler struct {
	svc    *Service
	logger *zap.Logger
}

type submitTxRequest struct {
	TxHash string `json:"txHash" binding:"required"`
}

// HealthCheck reports whether the backing store is reachable.
type HealthCheck func(ctx context.Context) error

// RegisterHandlers mounts the order API on r. Mutating routes require a bearer
// token when cfg.JWTSecret is set.
func RegisterHandlers(r *gin.Engine, svc *Service, cfg *config.Config, gatherer prometheus.Gatherer, health HealthCheck, logger *zap.Logger) {
	ph := &payHandler{svc: svc, logger: logger.With(zap.String("module", "api"))}

	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	auth := middleware.RequireAuth(cfg.JWTSecret)
	submitLimiter := middleware.NewRateLimiter(cfg.SubmitLimit, cfg.SubmitWindow)

	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	orders := r.Group("/orders")
	orders.POST("", auth, ph.handleCreateOrder)
	orders.GET("", ph.handleListOrders)
	orders.GET("/:orderId", ph.handleGetOrder)
	orders.GET("/:orderId/qrcode", ph.handleQRCode)
	orders.POST("/:orderId/tx", submitLimiter.Middleware(), auth, ph.handleSubmitTx)
	orders.DELETE("/:orderId", auth, ph.handleDeleteOrder)
}

func (ph *payHandler) fail(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		ph.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("order_id", c.Param("orderId")), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": Kind(err)})
}

func (ph *payHandler) handleCreateOrder(c *gin.Context) {
	var in CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		ph.fail(c, errors.Join(ErrInvalidOrder, err))
		return
	}
	o, err := ph.svc.CreateOrder(c.Request.Context(), in)
	if err != nil {
		ph.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (ph *payHandler) handleGetOrder(c *gin.Context) {
	o, err := ph.svc.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		ph.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (ph *payHandler) handleListOrders(c *gin.Context) {
	f := db.ListFilter{
		Status: c.Query("status"),
		Chain:  c.Query("chain"),
	}
	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		ph.fail(c, err)
		return
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		ph.fail(c, err)
		return
	}

	orders, err := ph.svc.ListOrders(c.Request.Context(), f)
	if err != nil {
		ph.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (ph *payHandler) handleSubmitTx(c *gin.Context) {
	var req submitTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ph.fail(c, errors.Join(ErrInvalidOrder, err))
		return
	}
	o, err := ph.svc.SubmitTxHash(c.Request.Context(), c.Param("orderId"), req.TxHash)
	if err != nil {
		ph.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (ph *payHandler) handleDeleteOrder(c *gin.Context) {
	if err := ph.svc.DeleteOrder(c.Request.Context(), c.Param("orderId")); err != nil {
		ph.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (ph *payHandler) handleQRCode(c *gin.Context) {
	png, err := ph.svc.QRCode(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		ph.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Join(ErrInvalidOrder, errors.New(key+" must be a non-negative integer"))
	}
	return n, nil
}
