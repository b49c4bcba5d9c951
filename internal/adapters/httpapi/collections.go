package httpapi

import (
	"net/http"
	"slices"
	"strconv"

	"molluscadb/internal/core"
	"molluscadb/internal/form"
	"molluscadb/pkg/domain"

	"github.com/labstack/echo/v4"
)

type recordResponse struct {
	Record     domain.Record      `json:"record"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

type listResponse struct {
	Collection domain.Collection `json:"collection"`
	Records    []domain.Record   `json:"records"`
}

type submitRequest struct {
	Values map[string]string `json:"values"`
	// LocalityCode, when set, copies that locality's template into the form.
	LocalityCode string `json:"localityCode,omitempty"`
}

type blurRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type blurResponse struct {
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func collectionParam(c echo.Context) (domain.Collection, error) {
	col := domain.Collection(c.Param("c"))
	if !col.Valid() {
		return "", echo.NewHTTPError(http.StatusNotFound, "unknown collection "+string(col))
	}
	return col, nil
}

func (s *Server) listCollection(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	records := w.Records(col)
	if c.QueryParam("order") == "newest" {
		slices.Reverse(records)
	}
	return c.JSON(http.StatusOK, listResponse{Collection: col, Records: records})
}

func (s *Server) formState(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	var st form.State
	err = w.Form(col, func(f *form.Form) error {
		st = f.State()
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) submitForm(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	var req submitRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	var resp recordResponse
	err = w.Form(col, func(f *form.Form) error {
		for name, value := range req.Values {
			if err := f.Set(name, value); err != nil {
				return err
			}
		}
		if req.LocalityCode != "" {
			if err := f.ApplyLocality(req.LocalityCode); err != nil {
				return err
			}
		}
		for _, field := range f.Schema().Fields {
			if field.Unique {
				if _, err := f.Blur(field.Name); err != nil {
					return err
				}
			}
		}
		rec, res, err := f.Submit(c.Request().Context())
		if err != nil {
			return err
		}
		resp = recordResponse{Record: rec, Violations: res.Violations}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) blurForm(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	var req blurRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	resp := blurResponse{Field: req.Field}
	err = w.Form(col, func(f *form.Form) error {
		if err := f.Set(req.Field, req.Value); err != nil {
			return err
		}
		msg, err := f.Blur(req.Field)
		resp.Message = msg
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) getRecord(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	key := c.Param("key")
	rec, ok := s.svc.Get(col, key)
	if !ok {
		return domain.ErrNotFound{Collection: col, Key: key}
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) updateRecord(c echo.Context) error {
	return s.write(c, false)
}

func (s *Server) replaceRecord(c echo.Context) error {
	return s.write(c, true)
}

func (s *Server) write(c echo.Context, replace bool) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	var doc domain.Document
	if err := decodeJSON(c, &doc); err != nil {
		return err
	}
	if len(doc) == 0 && !replace {
		return echo.NewHTTPError(http.StatusBadRequest, "no fields to update")
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	key := c.Param("key")
	var rec domain.Record
	var res domain.Result
	if replace {
		rec, res, err = w.Replace(ctx, col, key, doc.Normalize())
	} else {
		rec, res, err = w.Update(ctx, col, key, doc.Normalize())
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recordResponse{Record: rec, Violations: res.Violations})
}

func (s *Server) deleteRecord(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	if _, err := w.Delete(c.Request().Context(), col, c.Param("key")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) notifications(c echo.Context) error {
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	items := w.Notifications()
	if items == nil {
		items = []form.Notification{}
	}
	return c.JSON(http.StatusOK, items)
}

// recentAudit lists recent store operations, newest first. mine=1 keeps the
// caller's own.
func (s *Server) recentAudit(c echo.Context) error {
	if s.audit == nil {
		return c.JSON(http.StatusOK, []core.AuditEntry{})
	}
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		limit = n
	}
	actor := ""
	if truthy(c.QueryParam("mine")) {
		actor = identity(c).Email
	}
	return c.JSON(http.StatusOK, s.audit.Recent(limit, actor))
}
