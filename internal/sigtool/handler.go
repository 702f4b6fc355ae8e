// Package sigtool implements the signature-generator convenience endpoint
// (spec.md §4.6), letting an integrator compute the signature their endpoint
// should expect without instrumenting their own HMAC code first.
package sigtool

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relayhook/webhook-delivery-service/internal/models"
	"github.com/relayhook/webhook-delivery-service/internal/signing"
)

// Generate handles POST /tools/signature-generator.
func Generate(c *gin.Context) {
	var req models.SignatureGeneratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	canonical, err := signing.Canonicalize(req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	sig := signing.Sign(canonical, req.SecretKey)
	c.JSON(http.StatusOK, models.SignatureGeneratorResponse{
		XHubSignature256: signing.SignaturePrefix + sig,
	})
}
