package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"molluscadb/internal/blob"
	"molluscadb/internal/form"

	"github.com/labstack/echo/v4"
)

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (s *Server) export(c echo.Context) error {
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	view := c.Param("v")
	var buf bytes.Buffer
	file, rows, err := w.Export(view, &buf)
	if err != nil {
		return err
	}
	archived := false
	if truthy(c.QueryParam("archive")) {
		if s.archive == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "export archive not configured")
		}
		obj, err := s.archive.Save(c.Request().Context(), view, file, buf.Bytes(), map[string]string{
			"identity": identity(c).Email,
			"rows":     strconv.Itoa(rows),
		})
		if err != nil {
			return err
		}
		archived = true
		c.Response().Header().Set("X-Archive-Key", obj.Key)
	}
	if s.metrics != nil {
		s.metrics.RecordExport(view, rows, archived)
	}
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": file}))
	h.Set("X-Export-Rows", strconv.Itoa(rows))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) importCSV(c echo.Context) error {
	col, err := collectionParam(c)
	if err != nil {
		return err
	}
	w, err := s.ws(c)
	if err != nil {
		return err
	}
	var body io.Reader = http.MaxBytesReader(c.Response(), c.Request().Body, maxUploadBytes)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "multipart upload needs a file field")
		}
		f, err := fh.Open()
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		body = f
	}
	report, err := s.importer.Import(c.Request().Context(), col, body)
	if err != nil {
		return err
	}
	w.Notify(form.Notification{
		Level:      form.LevelSuccess,
		Message:    fmt.Sprintf("Imported %d %s records", report.Imported, col),
		Collection: col,
	})
	return c.JSON(http.StatusOK, report)
}

func (s *Server) listExports(c echo.Context) error {
	if s.archive == nil {
		return c.JSON(http.StatusOK, []blob.Object{})
	}
	objs, err := s.archive.List(c.Request().Context(), c.QueryParam("view"))
	if err != nil {
		return err
	}
	if objs == nil {
		objs = []blob.Object{}
	}
	return c.JSON(http.StatusOK, objs)
}

func (s *Server) downloadExport(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotFound, "export archive not configured")
	}
	key := c.Param("*")
	obj, rc, err := s.archive.Open(c.Request().Context(), key)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	name := key[strings.LastIndex(key, "/")+1:]
	c.Response().Header().Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "text/csv"
	}
	return c.Stream(http.StatusOK, contentType, rc)
}
