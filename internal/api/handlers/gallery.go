package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/gallery"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/observability"
	"github.com/GlobalTechSoftwareSolution/light-pkgs/pkg/dto"
)

type GalleryHandler struct {
	holder *gallery.Holder
}

func NewGalleryHandler(holder *gallery.Holder) *GalleryHandler {
	return &GalleryHandler{holder: holder}
}

func galleryResponse(g *gallery.Gallery) dto.GalleryResponse {
	return dto.GalleryResponse{
		Source:   g.Source(),
		Count:    g.Len(),
		LoadedAt: g.LoadedAt().Format(time.RFC3339),
		Names:    g.Names(),
	}
}

func (h *GalleryHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, galleryResponse(h.holder.Current()))
}

// Rescan reloads the reference images; concurrent calls share one load.
func (h *GalleryHandler) Rescan(c *gin.Context) {
	g, err := h.holder.Rescan(c.Request.Context())
	if err != nil {
		observability.LoggerFrom(c.Request.Context()).Error("gallery rescan failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "gallery rescan failed"})
		return
	}
	c.JSON(http.StatusOK, galleryResponse(g))
}
