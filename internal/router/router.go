package router

import (
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"otelsamples/internal/handler"
	"otelsamples/internal/middleware"
	"otelsamples/internal/service"
	"otelsamples/internal/tasks"
)

// Common 所有示例共用的中间件；server span 由 hertztracing 在此之前建立
func Common(r *route.Engine, framework string, extra ...app.HandlerFunc) {
	r.Use(extra...)
	r.Use(middleware.RecoverMiddleware())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.MetricsMiddleware(framework))
}

// Metrics OTEL_METRICS_EXPORTER=prometheus 时挂载抓取端点
func Metrics(r *route.Engine, path string) {
	r.GET(path, adaptor.HertzHandler(promhttp.Handler()))
}

// Web flask / fastapi / starlette 以及 static-methods 示例
func Web(r *route.Engine, deps *handler.Deps) {
	web := handler.NewWebHandler(deps)
	r.GET("/", web.Index)
	r.GET("/hello", web.Hello)
	r.GET("/hello/:name", web.HelloName)

	api := r.Group("/api")
	{
		api.GET("/status", web.Status)
		api.GET("/info", web.Info)
	}

	var (
		apiH  handler.ApiHandlers
		userH handler.UserHandlers
		mathH handler.MathHandlers
	)
	static := r.Group("/static")
	{
		static.GET("/api/status", apiH.GetStatus)
		static.GET("/api/info", apiH.GetInfo)
		static.GET("/users", userH.ListUsers)
		static.POST("/users", userH.CreateUser)
		static.GET("/users/:id", userH.GetUser)
		static.GET("/math/add/:a/:b", mathH.Add)
		static.GET("/math/multiply/:a/:b", mathH.Multiply)
	}
}

// Django 视图与 DRF 风格的 viewset 路由
func Django(r *route.Engine, deps *handler.Deps) {
	views := handler.NewViewsHandler(deps)
	r.GET("/", views.Hello)
	r.GET("/hello/", views.Hello)
	r.GET("/hello-world/", views.HelloWorld)
	r.GET("/test/", views.Test)
	r.POST("/test/", views.Test)
	r.GET("/slow/", views.Slow)
	r.GET("/param/:id/", views.Param)
	r.GET("/class/", views.ClassGet)
	r.POST("/class/", views.ClassPost)
	r.GET("/template/", views.Template)
	r.GET("/error/", views.Error)
	r.GET("/debug/", views.Debug)
	r.GET("/orm/", views.ORM)

	api := r.Group("/api")

	testVS := &handler.TestViewSet{Deps: deps}
	test := api.Group("/test")
	{
		test.GET("/", testVS.List)
		test.POST("/", testVS.Create)
		test.GET("/custom_action/", testVS.CustomAction)
		test.GET("/:pk/", testVS.Retrieve)
		test.PUT("/:pk/", testVS.Update)
		test.DELETE("/:pk/", testVS.Destroy)
	}

	productVS := &handler.ProductViewSet{Deps: deps, PurchaseDelay: 200 * time.Millisecond}
	products := api.Group("/products")
	{
		products.GET("/", productVS.List)
		products.POST("/", productVS.Create)
		products.GET("/:pk/", productVS.Retrieve)
		products.POST("/:pk/purchase/", productVS.Purchase)
	}

	healthVS := &handler.HealthViewSet{Deps: deps}
	health := api.Group("/health")
	{
		health.GET("/", healthVS.List)
		health.GET("/status/", healthVS.Status)
		health.GET("/detailed/", healthVS.Detailed)
	}
}

// RabbitMQ pika / aio-pika 示例
func RabbitMQ(r *route.Engine, svc *service.RabbitMQService) {
	h := handler.NewRabbitMQHandler(svc)
	r.POST("/connect", h.Connect)
	r.POST("/disconnect", h.Disconnect)
	r.GET("/connection-status", h.ConnectionStatus)
	r.POST("/connection-status", h.ConnectionStatus)
	r.POST("/create-queue", h.CreateQueue)
	r.GET("/queue-info", h.QueueInfo)
	r.POST("/queue-info", h.QueueInfo)
	r.POST("/publish", h.Publish)
	r.POST("/publish-batch", h.PublishBatch)
	r.POST("/start-consumer", h.StartConsumer)
	r.POST("/stop-consumer", h.StopConsumer)
	r.GET("/messages", h.Messages)
	r.POST("/clear-messages", h.ClearMessages)
}

// Tasks celery 示例；提交接口按 IP 限流
func Tasks(r *route.Engine, a *tasks.App, rdb *redis.Client, rpm int) {
	h := handler.NewTasksHandler(a)

	submit := r.Group("/", middleware.RateLimitMiddleware(rdb, middleware.TaskSubmitRateLimitConfig(rpm)))
	{
		submit.POST("/add", h.Add)
		submit.POST("/multiply", h.Multiply)
		submit.POST("/long-task", h.LongTask)
		submit.POST("/generate-data", h.GenerateData)
		submit.POST("/process-workflow", h.ProcessWorkflow)
		submit.POST("/chain-tasks", h.ChainTasks)
		submit.POST("/failing-task", h.FailingTask)
	}

	r.GET("/task-status/:id", h.TaskStatus)
	r.GET("/worker-status", h.WorkerStatus)
}
