package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"go.uber.org/zap"

	"otelsamples/internal/model"
	"otelsamples/pkg/logger"
	"otelsamples/pkg/response"
	"otelsamples/storage/database"
)

const productUnitPrice = 15.99

// requestData 请求体按 JSON 解析，空体或非法 JSON 视为空对象
func requestData(c *app.RequestContext) map[string]interface{} {
	data := map[string]interface{}{}
	if body := c.Request.Body(); len(body) > 0 {
		_ = json.Unmarshal(body, &data)
	}
	return data
}

// TestViewSet /api/test/
type TestViewSet struct {
	*Deps
}

func (v *TestViewSet) List(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"message": "Test ViewSet list action",
		"method":  "GET",
		"action":  "list",
	})
}

func (v *TestViewSet) Create(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)
	response.Created(ctx, c, utils.H{
		"message": "Test ViewSet create action",
		"method":  "POST",
		"action":  "create",
		"data":    requestData(c),
	})
}

func (v *TestViewSet) Retrieve(ctx context.Context, c *app.RequestContext) {
	pk := c.Param("pk")
	_, _ = v.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"message": "Test ViewSet retrieve action for ID: " + pk,
		"method":  "GET",
		"action":  "retrieve",
		"pk":      pk,
	})
}

func (v *TestViewSet) Update(ctx context.Context, c *app.RequestContext) {
	pk := c.Param("pk")
	_, _ = v.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"message": "Test ViewSet update action for ID: " + pk,
		"method":  "PUT",
		"action":  "update",
		"pk":      pk,
		"data":    requestData(c),
	})
}

func (v *TestViewSet) Destroy(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)
	response.NoContent(ctx, c)
}

func (v *TestViewSet) CustomAction(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"message": "Custom action on TestViewSet",
		"method":  "GET",
		"action":  "custom_action",
	})
}

// ProductViewSet /api/products/
type ProductViewSet struct {
	*Deps
	PurchaseDelay time.Duration
}

func (v *ProductViewSet) List(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)
	if v.AWS != nil {
		if _, err := v.AWS.ListBuckets(ctx); err != nil {
			logger.WithContext(ctx).Warn("S3 list buckets failed", zap.Error(err))
		}
	}
	response.JSON(ctx, c, utils.H{
		"message": "Product ViewSet list action",
		"products": []model.Product{
			{ID: 1, Name: "Product 1", Price: 10.99},
			{ID: 2, Name: "Product 2", Price: 20.99},
		},
	})
}

func (v *ProductViewSet) Create(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)

	data := requestData(c)
	name, ok := data["name"]
	if !ok {
		name = "New Product"
	}
	price, ok := data["price"]
	if !ok {
		price = 0.0
	}

	response.Created(ctx, c, utils.H{
		"message": "Product ViewSet create action",
		"created_product": utils.H{
			"id":    3,
			"name":  name,
			"price": price,
		},
	})
}

func (v *ProductViewSet) Retrieve(ctx context.Context, c *app.RequestContext) {
	pk := c.Param("pk")
	_, _ = v.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"message": "Product ViewSet retrieve action for ID: " + pk,
		"product": utils.H{
			"id":    pk,
			"name":  "Product " + pk,
			"price": productUnitPrice,
		},
	})
}

// Purchase POST /api/products/:pk/purchase/
func (v *ProductViewSet) Purchase(ctx context.Context, c *app.RequestContext) {
	pk := c.Param("pk")
	_, _ = v.callOutbound(ctx)

	select {
	case <-ctx.Done():
	case <-time.After(v.PurchaseDelay):
	}

	quantity, ok := requestData(c)["quantity"]
	if !ok {
		quantity = 1
	}
	qty, err := quantityValue(quantity)
	if err != nil {
		response.ErrorWithStatus(ctx, c, http.StatusBadRequest, err)
		return
	}

	response.JSON(ctx, c, utils.H{
		"message":    "Purchase action for product ID: " + pk,
		"product_id": pk,
		"quantity":   quantity,
		"total":      qty * productUnitPrice,
	})
}

func quantityValue(v interface{}) (float64, error) {
	switch q := v.(type) {
	case float64:
		return q, nil
	case int:
		return float64(q), nil
	case string:
		f, err := strconv.ParseFloat(q, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid quantity %q", q)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("invalid quantity %v", v)
	}
}

// HealthViewSet /api/health/
type HealthViewSet struct {
	*Deps
}

const healthService = "Django DRF Sample"

func unixSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func (v *HealthViewSet) List(ctx context.Context, c *app.RequestContext) {
	response.JSON(ctx, c, utils.H{
		"status":    "healthy",
		"timestamp": unixSeconds(),
		"service":   healthService,
	})
}

func (v *HealthViewSet) Status(ctx context.Context, c *app.RequestContext) {
	_, _ = v.callOutbound(ctx)
	response.JSON(ctx, c, utils.H{
		"application":  healthService,
		"status":       "running",
		"database":     "connected",
		"external_api": "reachable",
	})
}

// Detailed 每项检查都真实探测一次
func (v *HealthViewSet) Detailed(ctx context.Context, c *app.RequestContext) {
	checks := utils.H{
		"database":     healthOf(v.checkDatabase(ctx)),
		"external_api": healthOf(v.checkOutbound(ctx)),
	}
	if v.AWS != nil {
		_, err := v.AWS.ListBuckets(ctx)
		checks["s3"] = healthOf(err)
		_, err = v.AWS.ListTables(ctx)
		checks["dynamodb"] = healthOf(err)
	} else {
		checks["s3"] = "unhealthy"
		checks["dynamodb"] = "unhealthy"
	}

	response.JSON(ctx, c, utils.H{
		"application": healthService,
		"status":      "running",
		"checks":      checks,
		"timestamp":   unixSeconds(),
	})
}

func (v *HealthViewSet) checkDatabase(ctx context.Context) error {
	if v.DB == nil {
		return fmt.Errorf("database not configured")
	}
	return database.Ping(ctx, v.DB)
}

func (v *HealthViewSet) checkOutbound(ctx context.Context) error {
	status, err := v.callOutbound(ctx)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("outbound returned %d", status)
	}
	return nil
}

func healthOf(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}
