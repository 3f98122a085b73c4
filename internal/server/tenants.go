package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	"github.com/smallbiznis/revshare/pkg/db/pagination"
	"github.com/smallbiznis/revshare/pkg/money"
)

type revenueTotalResponse struct {
	TenantID     string `json:"tenant_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	TotalRevenue int64  `json:"total_revenue"`
	Formatted    string `json:"formatted"`
}

type reverseRevenueEventRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListRevenueEvents(c *gin.Context) {
	start, end, err := parseWindow(c.Query("from"), c.Query("to"), s.now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequest("page_size"))
		return
	}

	resp, err := s.ledger.ListEventsPage(c.Request.Context(), revenuedomain.ListRequest{
		TenantID:  c.Param("tenant_id"),
		Start:     start,
		End:       end,
		PageToken: page.PageToken,
		PageSize:  page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Events, "page_info": resp.PageInfo})
}

func (s *Server) GetRevenueTotal(c *gin.Context) {
	start, end, err := parseWindow(c.Query("from"), c.Query("to"), s.now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tenantID := c.Param("tenant_id")
	total, err := s.ledger.SumRevenue(c.Request.Context(), tenantID, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": revenueTotalResponse{
		TenantID:     tenantID,
		From:         start.UTC().Format(time.RFC3339),
		To:           end.UTC().Format(time.RFC3339),
		TotalRevenue: total,
		Formatted:    money.Format(total),
	}})
}

func (s *Server) ReverseRevenueEvent(c *gin.Context) {
	var req reverseRevenueEventRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequest("body"))
			return
		}
	}

	event, created, err := s.ledger.Reverse(c.Request.Context(), c.Param("tenant_id"), strings.TrimSpace(c.Param("call_id")), req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": event})
}

func (s *Server) ListSuccessFees(c *gin.Context) {
	charges, err := s.feeSvc.ListCharges(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if charges == nil {
		charges = []successfeedomain.SuccessFeeCharge{}
	}
	c.JSON(http.StatusOK, gin.H{"data": charges})
}

func (s *Server) GetTenantPrice(c *gin.Context) {
	quote, err := s.pricingSvc.QuoteForTenant(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quote})
}
