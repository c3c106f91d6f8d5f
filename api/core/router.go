package core

import (
	"github.com/anoixa/image-gallery/api"
	"github.com/anoixa/image-gallery/api/common"
	handlerImages "github.com/anoixa/image-gallery/api/handler/images"
	"github.com/anoixa/image-gallery/api/middleware"
	"github.com/anoixa/image-gallery/cache"
	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/fetch"
	"github.com/anoixa/image-gallery/internal/services/gallery"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerVersion 版本信息
type ServerVersion struct {
	Version    string
	CommitHash string
}

// RouterDependencies 路由注册依赖
type RouterDependencies struct {
	Gallery       *gallery.Service
	Sessions      *session.Context
	Refresher     handlerImages.Refresher
	CacheProvider cache.Provider
	Pool          *worker.Pool
	APIRateLimit  *middleware.IPRateLimiter
	ServerVersion ServerVersion
	Config        *config.Config
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, deps *RouterDependencies) {
	registerBasicRoutes(router, deps)
	registerGalleryRoutes(router, deps)
	registerSessionRoutes(router, deps)
}

// registerBasicRoutes 注册基础路由
func registerBasicRoutes(router *gin.Engine, deps *RouterDependencies) {
	healthHandler := NewHealthHandler(deps)
	router.GET("/health", healthHandler.Handle)

	router.GET("/version", func(context *gin.Context) {
		common.RespondSuccess(context, gin.H{
			"version": deps.ServerVersion.Version,
			"commit":  deps.ServerVersion.CommitHash,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerGalleryRoutes 注册画廊路由
func registerGalleryRoutes(router *gin.Engine, deps *RouterDependencies) {
	uploadMaxSizeMB := 50
	if deps.Config != nil {
		uploadMaxSizeMB = deps.Config.UploadMaxSizeMB
	}
	imageHandler := handlerImages.NewHandler(deps.Gallery, deps.Refresher, uploadMaxSizeMB)

	galleryGroup := router.Group("/gallery")
	galleryGroup.Use(middleware.NoStore())
	if deps.APIRateLimit != nil {
		galleryGroup.Use(deps.APIRateLimit.Middleware())
	}
	{
		galleryGroup.GET("", imageHandler.ListImages)              // GET /gallery
		galleryGroup.GET("/:id", imageHandler.GetImage)            // GET /gallery/{id}
		galleryGroup.POST("/refresh", imageHandler.RefreshGallery) // POST /gallery/refresh

		imagesGroup := galleryGroup.Group("/images")
		{
			imagesGroup.POST("", imageHandler.UploadImage)                // POST /gallery/images
			imagesGroup.DELETE("/:id", imageHandler.DeleteImage)          // DELETE /gallery/images/{id}
			imagesGroup.PATCH("/:id/privacy", imageHandler.TogglePrivacy) // PATCH /gallery/images/{id}/privacy
			imagesGroup.POST("/:id/like", imageHandler.Like)              // POST /gallery/images/{id}/like
			imagesGroup.POST("/:id/unlike", imageHandler.Unlike)          // POST /gallery/images/{id}/unlike
			imagesGroup.PUT("/:id/toggle-like", imageHandler.ToggleLike)  // PUT /gallery/images/{id}/toggle-like
			imagesGroup.PUT("/:id/set-likes", imageHandler.SetLikes)      // PUT /gallery/images/{id}/set-likes?likes=
			imagesGroup.GET("/:id/like-status", imageHandler.LikeStatus)  // GET /gallery/images/{id}/like-status
			imagesGroup.GET("/:id/similar", imageHandler.Similar)         // GET /gallery/images/{id}/similar?number=&descriptor=
			imagesGroup.GET("/:id/filter", imageHandler.Filter)           // GET /gallery/images/{id}/filter?filter=&number=&height=
		}
	}
}

// registerSessionRoutes 注册会话路由
func registerSessionRoutes(router *gin.Engine, deps *RouterDependencies) {
	var onChange func()
	if deps.Refresher != nil && deps.Gallery != nil {
		// 用户画廊中私有图片是否可见取决于当前用户
		onChange = func() {
			if deps.Gallery.Scope().Kind == fetch.ScopeUser {
				deps.Refresher.TriggerRefresh()
			}
		}
	}
	loginHandler := api.NewLoginHandler(deps.Sessions, onChange)

	sessionGroup := router.Group("/session")
	sessionGroup.Use(middleware.NoStore())
	if deps.APIRateLimit != nil {
		sessionGroup.Use(deps.APIRateLimit.Middleware())
	}
	{
		sessionGroup.GET("", loginHandler.CurrentHandlerFunc)            // GET /session
		sessionGroup.POST("/login", loginHandler.LoginHandlerFunc)       // POST /session/login
		sessionGroup.POST("/register", loginHandler.RegisterHandlerFunc) // POST /session/register
		sessionGroup.POST("/logout", loginHandler.LogoutHandlerFunc)     // POST /session/logout
	}

	router.GET("/users/:userid", loginHandler.ProfileHandlerFunc) // GET /users/{userid}
}
