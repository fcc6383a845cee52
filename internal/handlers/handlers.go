package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/kyc-engine/internal/usecase"
)

// MaxBodyBytes caps request bodies; base64 image payloads beyond this are
// rejected before any decoding work.
const MaxBodyBytes = 20 << 20

type imageRequest struct {
	Image string `json:"image"`
}

type facePairRequest struct {
	Image1 string `json:"image1"`
	Image2 string `json:"image2"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.KYCUseCase) {
	router.Use(limitBody)

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "KYC Engine is Running")
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, uc.GetMetricsSummary())
	})

	router.POST("/verify-cnic", func(c *gin.Context) {
		var req imageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Image == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
			return
		}

		lines, err := uc.VerifyCNIC(c.Request.Context(), req.Image)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if lines == nil {
			lines = []string{}
		}

		c.JSON(http.StatusOK, gin.H{"raw_text": lines})
	})

	router.POST("/face-verify", func(c *gin.Context) {
		var req facePairRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Image1 == "" || req.Image2 == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "image1 and image2 required"})
			return
		}

		result, err := uc.FaceVerify(c.Request.Context(), req.Image1, req.Image2)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"verified":  result.Verified,
			"distance":  result.Distance,
			"threshold": result.Threshold,
		})
	})

	router.POST("/shop-verify", func(c *gin.Context) {
		var req imageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Image == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
			return
		}

		report, err := uc.ShopVerify(c.Request.Context(), req.Image)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"detected_objects": report.Objects,
			"text_content":     report.Text,
		})
	})
}

func limitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	}
	c.Next()
}
