package httpapi

import (
	"net/http"

	"molluscadb/pkg/domain"

	"github.com/labstack/echo/v4"
)

type linkRequest struct {
	Member string `json:"member"`
}

func (s *Server) groupMembers(c echo.Context) error {
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	members, err := w.Members(c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(members))
}

func (s *Server) groupCandidates(c echo.Context) error {
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	candidates, err := w.Candidates(c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nonNil(candidates))
}

func (s *Server) linkGroup(c echo.Context) error {
	var req linkRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	if req.Member == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "member required")
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	out, err := w.Link(c.Request().Context(), c.Param("key"), req.Member)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) unlinkGroup(c echo.Context) error {
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	out, err := w.Unlink(c.Request().Context(), c.Param("key"), c.Param("member"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func nonNil(records []domain.Record) []domain.Record {
	if records == nil {
		return []domain.Record{}
	}
	return records
}
