package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/revora/revora/internal/catalog/domain"
)

func (s *Server) CreateService(c *gin.Context) {
	var req catalogdomain.CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	svc, err := s.catalogSvc.CreateService(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": svc})
}

func (s *Server) ListServices(c *gin.Context) {
	var req catalogdomain.ListServiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	services, err := s.catalogSvc.ListServices(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": services})
}

func (s *Server) GetServiceByID(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	svc, err := s.catalogSvc.GetService(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": svc})
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req catalogdomain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plan, err := s.catalogSvc.CreatePlan(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": plan})
}

func (s *Server) GetPlanByID(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	plan, err := s.catalogSvc.GetPlan(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": plan})
}
