package controllers

import (
	"errors"
	"net/http"

	"go-qris/payment/db"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.Store.ListProducts(c.Request.Context())
	if err != nil {
		h.Logger.Error("failed to list products", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to fetch products")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    products,
	})
}

func (h *Handler) CreateProduct(c *gin.Context) {
	var body struct {
		URL      string  `json:"url"`
		Name     string  `json:"name"`
		Price    int64   `json:"price"`
		ImageURL *string `json:"imageUrl"`
	}
	if c.ShouldBindJSON(&body) != nil || body.URL == "" || body.Name == "" || body.Price == 0 {
		fail(c, http.StatusBadRequest, "URL, name, and price are required")
		return
	}

	product := db.Product{
		URL:      body.URL,
		Name:     body.Name,
		Price:    body.Price,
		ImageURL: body.ImageURL,
	}
	created, err := h.Store.CreateProduct(c.Request.Context(), &product)
	if err != nil {
		h.Logger.Error("failed to create product", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to create product")
		return
	}

	message := "Product created successfully"
	if !created {
		message = "Product already exists"
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    product,
		"message": message,
	})
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		fail(c, http.StatusBadRequest, "Product ID is required")
		return
	}

	err := h.Store.DeleteProduct(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		fail(c, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		h.Logger.Error("failed to delete product", zap.String("id", id), zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to delete product")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Product deleted successfully",
	})
}
