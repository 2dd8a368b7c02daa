package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	directorydomain "github.com/revora/revora/internal/directory/domain"
)

func (s *Server) CreateReseller(c *gin.Context) {
	var req directorydomain.CreateResellerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reseller, err := s.directorySvc.CreateReseller(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": reseller})
}

func (s *Server) GetResellerByID(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reseller, err := s.directorySvc.GetReseller(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reseller})
}

func (s *Server) SetCommissionRate(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		CommissionRate int64 `json:"commission_rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.directorySvc.SetCommissionRate(c.Request.Context(), id, req.CommissionRate); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) CreateClient(c *gin.Context) {
	var req directorydomain.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	client, err := s.directorySvc.CreateClient(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": client})
}

func (s *Server) GetClientByID(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	client, err := s.directorySvc.GetClient(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": client})
}

func (s *Server) DeactivateClient(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.directorySvc.DeactivateClient(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
