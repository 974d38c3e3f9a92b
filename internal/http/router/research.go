package router

import (
	"github.com/gin-gonic/gin"

	"github.com/basegraphhq/researchd/internal/http/handler"
)

func ResearchRouter(rg *gin.RouterGroup, h *handler.ResearchHandler) {
	rg.POST("/research", h.Run)
}
