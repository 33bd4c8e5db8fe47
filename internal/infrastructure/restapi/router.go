package restapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter wires the API routes.
func SetupRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	corsConfig.ExposeHeaders = []string{RequestIDHeader}
	router.Use(cors.New(corsConfig))
	router.Use(RequestID())
	router.Use(ZapLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/networth", h.NetWorth)
		v1.GET("/vesting", h.VestingNetWorth)
		v1.GET("/tvl", h.TVL)

		v1.GET("/chains", h.Chains)
		chains := v1.Group("/chains/:chainId")
		{
			chains.GET("/balances", h.Balances)
			chains.GET("/allowance", h.Allowance)
			chains.GET("/supply/:token", h.TotalSupply)
			chains.GET("/prices/:token", h.Price)
			chains.GET("/escrow", h.Escrow)
		}

		v1.GET("/tracker", h.Tracker)
		v1.PUT("/tracker/selection", h.SelectTracked)
		v1.GET("/tracker/ws", h.TrackerStream)
	}

	return router
}
