package httpapi

import (
	"net/http"

	"molluscadb/internal/grid"

	"github.com/labstack/echo/v4"
)

type viewSummary struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Collection string `json:"collection"`
	Dynamic    bool   `json:"dynamic,omitempty"`
}

type cellRequest struct {
	Row    string  `json:"row"`
	Column string  `json:"column"`
	Value  *string `json:"value,omitempty"`
	// Blur ends the edit: unchanged cells do nothing, no-confirm columns
	// write at once, others return a confirmation prompt.
	Blur bool `json:"blur,omitempty"`
}

type cellResponse struct {
	Cell   grid.Cell        `json:"cell"`
	Result *grid.EditResult `json:"result,omitempty"`
}

type editRequest struct {
	ID string `json:"id"`
}

type filterRequest struct {
	Column string             `json:"column,omitempty"`
	Filter *grid.ColumnFilter `json:"filter,omitempty"`
	// Mode "all" or "none" selects or clears every value of Column.
	Mode   string  `json:"mode,omitempty"`
	Global *string `json:"global,omitempty"`
	Clear  bool    `json:"clear,omitempty"`
}

type searchRequest struct {
	Column string `json:"column"`
	Query  string `json:"query"`
}

type columnRequest struct {
	Column string `json:"column"`
	Hidden *bool  `json:"hidden,omitempty"`
	Index  *int   `json:"index,omitempty"`
}

type selectionRequest struct {
	Row      string `json:"row,omitempty"`
	Selected *bool  `json:"selected,omitempty"`
	All      bool   `json:"all,omitempty"`
}

type selectionResponse struct {
	Header   grid.HeaderState `json:"header"`
	Selected []string         `json:"selected"`
}

type fieldRequest struct {
	Name string `json:"name"`
}

// withGrid runs fn on the request's view grid.
func (s *Server) withGrid(c echo.Context, fn func(*grid.Grid) error) error {
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	return w.Grid(c.Param("v"), fn)
}

// respondState runs fn and answers with the grid's rendered state.
func (s *Server) respondState(c echo.Context, fn func(*grid.Grid) error) error {
	var st grid.State
	err := s.withGrid(c, func(g *grid.Grid) error {
		if fn != nil {
			if err := fn(g); err != nil {
				return err
			}
		}
		st = g.State()
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) listViews(c echo.Context) error {
	views := grid.Views()
	out := make([]viewSummary, 0, len(views))
	for _, v := range views {
		out = append(out, viewSummary{Name: v.Name, Title: v.Title, Collection: string(v.Collection), Dynamic: v.Dynamic})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) viewState(c echo.Context) error {
	return s.respondState(c, nil)
}

func (s *Server) editCell(c echo.Context) error {
	var req cellRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	var resp cellResponse
	err := s.withGrid(c, func(g *grid.Grid) error {
		var res grid.EditResult
		var err error
		switch {
		case req.Value != nil && req.Blur:
			res, err = g.Select(ctx, req.Row, req.Column, *req.Value)
		case req.Value != nil:
			_, err = g.SetInput(req.Row, req.Column, *req.Value)
		case req.Blur:
			res, err = g.Blur(ctx, req.Row, req.Column)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "value or blur required")
		}
		if err != nil {
			return err
		}
		if req.Blur {
			resp.Result = &res
		}
		resp.Cell, err = g.Cell(req.Row, req.Column)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) confirmEdit(c echo.Context) error {
	var req editRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	return s.editTransition(c, func(g *grid.Grid) (grid.EditResult, error) {
		return g.Confirm(c.Request().Context(), req.ID)
	})
}

func (s *Server) cancelEdit(c echo.Context) error {
	var req editRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	return s.editTransition(c, func(g *grid.Grid) (grid.EditResult, error) {
		return g.Cancel(req.ID)
	})
}

func (s *Server) revertEdit(c echo.Context) error {
	return s.editTransition(c, func(g *grid.Grid) (grid.EditResult, error) {
		return g.Revert(c.Request().Context())
	})
}

func (s *Server) editTransition(c echo.Context, fn func(*grid.Grid) (grid.EditResult, error)) error {
	var res grid.EditResult
	err := s.withGrid(c, func(g *grid.Grid) error {
		var err error
		res, err = fn(g)
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) setFilters(c echo.Context) error {
	var req filterRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	return s.respondState(c, func(g *grid.Grid) error {
		if req.Clear {
			g.ClearFilters()
		}
		if req.Global != nil {
			g.SetGlobalFilter(*req.Global)
		}
		if req.Column == "" {
			return nil
		}
		switch req.Mode {
		case "all":
			return g.SelectAll(req.Column)
		case "none":
			return g.UnselectAll(req.Column)
		case "":
			if req.Filter == nil {
				return g.SetFilter(req.Column, grid.ColumnFilter{})
			}
			return g.SetFilter(req.Column, *req.Filter)
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "unknown filter mode "+req.Mode)
		}
	})
}

func (s *Server) facets(c echo.Context) error {
	var out grid.Facets
	err := s.withGrid(c, func(g *grid.Grid) error {
		var err error
		out, err = g.Facets(c.Param("column"))
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) searchOptions(c echo.Context) error {
	var req searchRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	var out []string
	err := s.withGrid(c, func(g *grid.Grid) error {
		var err error
		out, err = g.SearchOptions(req.Column, req.Query)
		return err
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []string{}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) toggleSort(c echo.Context) error {
	var req searchRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	return s.respondState(c, func(g *grid.Grid) error {
		_, err := g.ToggleSort(req.Column)
		return err
	})
}

func (s *Server) setSelection(c echo.Context) error {
	var req selectionRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	var resp selectionResponse
	err := s.withGrid(c, func(g *grid.Grid) error {
		switch {
		case req.All:
			g.ToggleAll()
		case req.Row != "" && req.Selected != nil:
			if err := g.SetSelected(req.Row, *req.Selected); err != nil {
				return err
			}
		case req.Row != "":
			if _, err := g.ToggleRow(req.Row); err != nil {
				return err
			}
		default:
			return echo.NewHTTPError(http.StatusBadRequest, "row or all required")
		}
		resp = selectionResponse{Header: g.HeaderState(), Selected: g.Selected()}
		return nil
	})
	if err != nil {
		return err
	}
	if resp.Selected == nil {
		resp.Selected = []string{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) layoutColumn(c echo.Context) error {
	var req columnRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	return s.respondState(c, func(g *grid.Grid) error {
		if req.Hidden != nil {
			if err := g.SetHidden(req.Column, *req.Hidden); err != nil {
				return err
			}
		}
		if req.Index != nil {
			return g.MoveColumn(req.Column, *req.Index)
		}
		return nil
	})
}

func (s *Server) addField(c echo.Context) error {
	var req fieldRequest
	if err := decodeJSON(c, &req); err != nil {
		return err
	}
	var resp recordResponse
	err := s.withGrid(c, func(g *grid.Grid) error {
		rec, err := g.AddField(c.Request().Context(), req.Name)
		resp.Record = rec
		return err
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}
