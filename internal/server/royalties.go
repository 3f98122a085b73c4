package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
)

type royaltyRunResponse struct {
	Summary royaltydomain.Summary              `json:"summary"`
	Entries []royaltydomain.RoyaltyLedgerEntry `json:"entries"`
}

func (s *Server) RunRoyalties(c *gin.Context) {
	period, err := parsePeriod(c.Query("period"), s.now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.royaltySvc.ComputeRoyalties(c.Request.Context(), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newRoyaltyRunResponse(period, entries)})
}

func (s *Server) ListRoyalties(c *gin.Context) {
	period, err := parsePeriod(c.Query("period"), s.now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.royaltySvc.ListRoyalties(c.Request.Context(), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newRoyaltyRunResponse(period, entries)})
}

func (s *Server) GetRoyaltyStatement(c *gin.Context) {
	period, err := parsePeriod(c.Query("period"), s.now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.royaltySvc.RenderStatement(c.Request.Context(), period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="royalty-statement-`+period.Label()+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func newRoyaltyRunResponse(period royaltydomain.Period, entries []royaltydomain.RoyaltyLedgerEntry) royaltyRunResponse {
	if entries == nil {
		entries = []royaltydomain.RoyaltyLedgerEntry{}
	}
	return royaltyRunResponse{
		Summary: royaltydomain.Summarize(period, entries),
		Entries: entries,
	}
}
