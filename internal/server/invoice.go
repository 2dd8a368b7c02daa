package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/revora/revora/internal/invoice/domain"
)

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req invoicedomain.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.Generate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.cloudRecorder != nil {
		s.cloudRecorder.RecordInvoiceGenerated(inv.ResellerID.String())
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListInvoiceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.invoiceSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) SendInvoice(c *gin.Context) {
	s.transitionInvoice(c, invoicedomain.InvoiceStatusSent)
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	s.transitionInvoice(c, invoicedomain.InvoiceStatusPaid)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	s.transitionInvoice(c, invoicedomain.InvoiceStatusCancelled)
}

func (s *Server) transitionInvoice(c *gin.Context, to invoicedomain.InvoiceStatus) {
	id, err := parsePathID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Transition(c.Request.Context(), id, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}
